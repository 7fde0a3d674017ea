package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by Execute after Dispose.
	ErrDisposed = errors.New("inference: network disposed")

	// ErrChecksumMismatch is returned when a model asset does not match its
	// expected digest.
	ErrChecksumMismatch = errors.New("inference: model checksum mismatch")
)

// ModelLoadError reports a malformed or incompatible model asset.
type ModelLoadError struct {
	Asset string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("inference: load model %s: %v", e.Asset, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

func loadError(asset Asset, err error) error {
	return &ModelLoadError{Asset: asset.String(), Err: err}
}
