//go:build !windows

package gpu

// NewWebGPU reports ErrUnavailable: the go-webgpu bindings are only built on windows.
func NewWebGPU(Resampler) (Device, error) {
	return nil, ErrUnavailable
}

// IsWebGPUAvailable reports whether a WebGPU adapter can be acquired.
func IsWebGPUAvailable() bool {
	return false
}
