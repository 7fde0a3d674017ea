package gpu

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func TestHostAllocateRelease(t *testing.T) {
	dev := NewHost(Bilinear)

	buf, err := dev.Allocate(8, 4, ColorRGBA8)
	require.NoError(t, err)
	assert.Equal(t, 8, buf.Width())
	assert.Equal(t, 4, buf.Height())
	assert.Equal(t, 128, buf.ByteSize())

	stats := dev.Stats()
	assert.Equal(t, uint64(1), stats.Allocations)
	assert.Equal(t, int64(1), stats.ActiveBuffers)
	assert.Equal(t, uint64(128), stats.LiveBytes)

	buf.Release()
	buf.Release() // idempotent

	stats = dev.Stats()
	assert.Equal(t, uint64(1), stats.Releases)
	assert.Equal(t, int64(0), stats.ActiveBuffers)
	assert.Equal(t, uint64(0), stats.LiveBytes)
	assert.Equal(t, uint64(128), stats.PeakBytes)
	assert.True(t, buf.Released())
}

func TestHostAllocateInvalid(t *testing.T) {
	dev := NewHost(Bilinear)
	_, err := dev.Allocate(0, 4, DepthF32)
	assert.ErrorIs(t, err, ErrInvalidExtent)
}

func TestHostBlitResamples(t *testing.T) {
	for _, r := range []Resampler{Bilinear, NearestNeighbor, ApproxBilinear, CatmullRom} {
		t.Run(r.String(), func(t *testing.T) {
			dev := NewHost(r)
			dst, err := dev.Allocate(16, 16, ColorRGBA8)
			require.NoError(t, err)
			defer dst.Release()

			src := solid(64, 48, color.RGBA{R: 128, G: 128, B: 128, A: 255})
			require.NoError(t, dev.Blit(src, dst))

			pix, err := dev.Read(dst)
			require.NoError(t, err)
			require.Len(t, pix, 16*16*4)
			for i := 0; i < len(pix); i += 4 {
				assert.Equal(t, uint8(128), pix[i], "pixel %d", i/4)
			}
			assert.Equal(t, uint64(1), dev.Stats().Blits)
		})
	}
}

func TestHostBlitSameSizeCopies(t *testing.T) {
	dev := NewHost(Bilinear)
	dst, err := dev.Allocate(2, 1, ColorRGBA8)
	require.NoError(t, err)

	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	copy(src.Pix, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, dev.Blit(src, dst))

	pix, err := dev.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, pix)
}

func TestHostBlitErrors(t *testing.T) {
	dev := NewHost(Bilinear)

	depth, err := dev.Allocate(2, 2, DepthF32)
	require.NoError(t, err)
	assert.ErrorIs(t, dev.Blit(solid(2, 2, color.RGBA{}), depth), ErrFormat)
	assert.ErrorIs(t, dev.Blit(nil, depth), ErrNilSource)

	depth.Release()
	rgba, err := dev.Allocate(2, 2, ColorRGBA8)
	require.NoError(t, err)
	rgba.Release()
	assert.ErrorIs(t, dev.Blit(solid(2, 2, color.RGBA{}), rgba), ErrReleased)
}

func TestHostWriteReadFloat32(t *testing.T) {
	dev := NewHost(Bilinear)
	buf, err := dev.Allocate(2, 2, DepthF32)
	require.NoError(t, err)
	defer buf.Release()

	values := []float32{0.5, -1, 3.25, 1e6}
	require.NoError(t, dev.WriteFloat32(buf, values))

	got, err := ReadFloat32(dev, buf)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	assert.Error(t, dev.WriteFloat32(buf, values[:3]))
}

func TestOpen(t *testing.T) {
	dev, err := Open("host", Bilinear)
	require.NoError(t, err)
	assert.Contains(t, dev.Name(), "host")

	_, err = Open("metal", Bilinear)
	assert.Error(t, err)
}

func TestParseResampler(t *testing.T) {
	r, err := ParseResampler("catmull-rom")
	require.NoError(t, err)
	assert.Equal(t, CatmullRom, r)

	r, err = ParseResampler("")
	require.NoError(t, err)
	assert.Equal(t, Bilinear, r)

	_, err = ParseResampler("lanczos")
	assert.Error(t, err)
}
