//go:build windows

package gpu

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// WebGPU is a Device keeping buffers in GPU memory through go-webgpu.
// Resampling happens on the host; the result is uploaded with a staging copy.
type WebGPU struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfoGo
	resampler   Resampler
	tracker     tracker

	// scratch is the host image resampled frames are drawn into before upload.
	scratch *image.RGBA
}

const residentUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// NewWebGPU creates a WebGPU device on the high-performance adapter.
func NewWebGPU(r Resampler) (dev Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if rec := recover(); rec != nil {
			dev = nil
			err = fmt.Errorf("%w: webgpu native library: %v", ErrUnavailable, rec)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrUnavailable, instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", ErrUnavailable, adapterErr)
	}

	// Missing adapter info only affects Name.
	adapterInfo, infoErr := adapter.GetInfo()
	if infoErr != nil {
		adapterInfo = nil
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrUnavailable, deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	return &WebGPU{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: adapterInfo,
		resampler:   r,
	}, nil
}

// Name returns the adapter description.
func (w *WebGPU) Name() string {
	if w.adapterInfo != nil {
		return fmt.Sprintf("webgpu (%s %s)", w.adapterInfo.Vendor, w.adapterInfo.Description)
	}
	return "webgpu"
}

// Allocate creates a zeroed device-resident buffer.
func (w *WebGPU) Allocate(width, height int, format Format) (*Buffer, error) {
	if err := checkExtent(width, height); err != nil {
		return nil, err
	}
	if w.device == nil {
		return nil, ErrUnavailable
	}
	size := width * height * format.BytesPerPixel()
	gb := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: residentUsage,
		Size:  uint64(size),
	})
	b := &Buffer{
		width:  width,
		height: height,
		format: format,
		handle: gb,
		free: func(b *Buffer) {
			if gb, ok := b.handle.(*wgpu.Buffer); ok && gb != nil {
				gb.Release()
			}
			w.tracker.released(b.ByteSize())
		},
	}
	b.id = w.tracker.allocated(size)
	return b, nil
}

// Blit resamples src on the host and uploads the result into dst.
func (w *WebGPU) Blit(src image.Image, dst *Buffer) error {
	if src == nil {
		return ErrNilSource
	}
	if dst.format != ColorRGBA8 {
		return fmt.Errorf("%w: blit into %s", ErrFormat, dst.format)
	}
	if w.scratch == nil || w.scratch.Rect.Dx() != dst.width || w.scratch.Rect.Dy() != dst.height {
		w.scratch = image.NewRGBA(image.Rect(0, 0, dst.width, dst.height))
	}
	w.resampler.resampleInto(w.scratch, src)
	if err := w.upload(dst, w.scratch.Pix); err != nil {
		return err
	}
	w.tracker.blitted()
	return nil
}

// WriteFloat32 uploads values into a DepthF32 buffer.
func (w *WebGPU) WriteFloat32(dst *Buffer, values []float32) error {
	if dst.format != DepthF32 {
		return fmt.Errorf("%w: write float32 into %s", ErrFormat, dst.format)
	}
	if len(values) != dst.width*dst.height {
		return fmt.Errorf("gpu: %d values for %dx%d buffer", len(values), dst.width, dst.height)
	}
	return w.upload(dst, encodeFloat32(values))
}

// Read copies a device buffer back to host memory through a staging buffer.
func (w *WebGPU) Read(src *Buffer) ([]byte, error) {
	gb, err := w.resident(src)
	if err != nil {
		return nil, err
	}
	size := uint64(src.ByteSize())

	staging := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := w.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(gb, 0, staging, 0, size)
	w.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(w.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("gpu: map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	view := unsafe.Slice((*byte)(mapped), size)
	out := make([]byte, size)
	copy(out, view)
	staging.Unmap()

	return out, nil
}

// Stats returns allocation statistics.
func (w *WebGPU) Stats() MemoryStats {
	return w.tracker.snapshot()
}

// Close releases all WebGPU objects. Safe to call more than once.
func (w *WebGPU) Close() {
	if w.queue != nil {
		w.queue.Release()
		w.queue = nil
	}
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
}

// upload copies data into dst with a mapped-at-creation staging buffer.
func (w *WebGPU) upload(dst *Buffer, data []byte) error {
	gb, err := w.resident(dst)
	if err != nil {
		return err
	}
	size := uint64(len(data))

	staging := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mapped), size), data)
	staging.Unmap()

	encoder := w.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, gb, 0, size)
	w.queue.Submit(encoder.Finish(nil))
	return nil
}

func (w *WebGPU) resident(b *Buffer) (*wgpu.Buffer, error) {
	if err := checkUsable(b); err != nil {
		return nil, err
	}
	gb, ok := b.handle.(*wgpu.Buffer)
	if !ok || gb == nil {
		return nil, fmt.Errorf("gpu: buffer %v does not belong to the webgpu device", b)
	}
	if w.device == nil {
		return nil, ErrUnavailable
	}
	return gb, nil
}

// IsWebGPUAvailable checks if a WebGPU adapter can be acquired.
func IsWebGPUAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}
