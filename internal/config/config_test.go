package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/gpu"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 256, cfg.Height)
	assert.Equal(t, bridge.LayoutAuto, cfg.LayoutMode())
	assert.Equal(t, bridge.OrderAuto, cfg.Order())
	assert.Equal(t, gpu.Bilinear, cfg.Resampler())
	assert.Zero(t, cfg.Budget())
	assert.False(t, cfg.ParallelConvert)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeFile(t, "cfg.json", `{
		"layout": "reshape",
		"calculate_extents": true,
		"frame_budget": "33ms",
		"parallel_convert": true,
		"mean": [0.485, 0.456, 0.406],
		"std": [0.229, 0.224, 0.225]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, "host", cfg.Device)
	assert.Equal(t, bridge.LayoutReshape, cfg.LayoutMode())
	assert.True(t, cfg.CalculateExtents)
	assert.Equal(t, 33*time.Millisecond, cfg.Budget())
	assert.True(t, cfg.ParallelConvert)

	mean, std := cfg.Normalization()
	assert.Equal(t, float32(0.456), mean[1])
	assert.Equal(t, float32(0.225), std[2])
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "cfg.yaml", `{}`, ".json extension"},
		{"syntax", "cfg.json", `{"width": }`, "parse config"},
		{"size", "cfg.json", `{"width": 0}`, "width and height"},
		{"layout", "cfg.json", `{"layout": "swap"}`, "unknown layout"},
		{"order", "cfg.json", `{"input_order": "hwc"}`, "unknown input order"},
		{"device", "cfg.json", `{"device": "cuda"}`, "device must be"},
		{"resample", "cfg.json", `{"resample": "lanczos"}`, "unknown resampler"},
		{"mean", "cfg.json", `{"mean": [0.5]}`, "mean must have 3"},
		{"std", "cfg.json", `{"std": [1, 0, 1]}`, "std[1] must be positive"},
		{"budget", "cfg.json", `{"frame_budget": "fast"}`, "invalid frame_budget"},
		{"skips", "cfg.json", `{"max_consecutive_skips": -1}`, "max_consecutive_skips"},
		{"digest", "cfg.json", `{"model_sha256": "abc"}`, "model_sha256 must be 64 hex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadTooLarge(t *testing.T) {
	big := `{"model_path": "` + strings.Repeat("a", maxFileSize) + `"}`
	_, err := Load(writeFile(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Width, cfg.Height = 320, 240
	cfg.ModelPath = "models/midas.onnx"
	cfg.MaxConsecutiveSkips = 30

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
