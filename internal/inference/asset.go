package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/born-ml/livedepth/internal/onnx"
)

// Asset is a serialized ONNX model, read from a file or held in memory.
type Asset struct {
	Path string
	Data []byte
	Name string // label for in-memory assets

	// SHA256 is the expected hex digest of the serialized model; empty skips
	// verification.
	SHA256 string
}

// FileAsset refers to an ONNX file on disk.
func FileAsset(path string) Asset {
	return Asset{Path: path}
}

// BytesAsset wraps an in-memory ONNX model.
func BytesAsset(name string, data []byte) Asset {
	return Asset{Name: name, Data: data}
}

// Empty reports whether the asset names no model.
func (a Asset) Empty() bool {
	return a.Path == "" && len(a.Data) == 0
}

func (a Asset) String() string {
	switch {
	case a.Path != "":
		return fmt.Sprintf("%q", a.Path)
	case a.Name != "":
		return fmt.Sprintf("%q (%d bytes)", a.Name, len(a.Data))
	default:
		return fmt.Sprintf("<memory> (%d bytes)", len(a.Data))
	}
}

// WithSHA256 returns a copy of a that verifies the model digest on load.
func (a Asset) WithSHA256(digest string) Asset {
	a.SHA256 = digest
	return a
}

func (a Asset) parse() (*onnx.ModelProto, error) {
	if a.Empty() {
		return nil, fmt.Errorf("empty asset")
	}
	if a.SHA256 == "" {
		if a.Path != "" {
			return onnx.ParseFile(a.Path)
		}
		return onnx.Parse(a.Data)
	}

	data := a.Data
	if a.Path != "" {
		var err error
		if data, err = os.ReadFile(a.Path); err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
	}
	if err := verifyChecksum(data, a.SHA256); err != nil {
		return nil, err
	}
	return onnx.Parse(data)
}

// verifyChecksum compares the SHA-256 of data with a hex digest.
func verifyChecksum(data []byte, digest string) error {
	want, err := hex.DecodeString(strings.TrimSpace(digest))
	if err != nil || len(want) != sha256.Size {
		return fmt.Errorf("invalid sha256 digest %q", digest)
	}
	got := sha256.Sum256(data)
	if string(got[:]) != string(want) {
		return fmt.Errorf("%w: got %x", ErrChecksumMismatch, got)
	}
	return nil
}
