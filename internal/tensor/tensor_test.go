package tensor

import (
	"testing"
)

func TestNewRawZeroFilled(t *testing.T) {
	x, err := NewRaw(Shape{2, 3}, Float32)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	defer x.Release()

	if x.NumElements() != 6 {
		t.Errorf("NumElements = %d, want 6", x.NumElements())
	}
	if x.ByteSize() != 24 {
		t.Errorf("ByteSize = %d, want 24", x.ByteSize())
	}
	for i, v := range x.AsFloat32() {
		if v != 0 {
			t.Errorf("data[%d] = %v, want 0", i, v)
		}
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, 0}, Float32); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestFromFloat32LengthMismatch(t *testing.T) {
	if _, err := FromFloat32(Shape{2, 2}, []float32{1, 2, 3}); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestReshapeSharesData(t *testing.T) {
	x, err := FromFloat32(Shape{4}, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	y, err := Reshape(x, Shape{1, 2, 2, 1})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}

	if !y.Shape().Equal(Shape{1, 2, 2, 1}) {
		t.Errorf("shape = %v", y.Shape())
	}

	// Releasing the source must not free the reshaped view.
	x.Release()
	if got := y.AsFloat32()[3]; got != 4 {
		t.Errorf("y[3] = %v, want 4", got)
	}
	y.Release()
}

func TestReshapeInfer(t *testing.T) {
	x, _ := NewRaw(Shape{2, 6}, Float32)
	defer x.Release()

	y, err := Reshape(x, Shape{3, -1})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	defer y.Release()

	if !y.Shape().Equal(Shape{3, 4}) {
		t.Errorf("shape = %v, want [3 4]", y.Shape())
	}

	if _, err := Reshape(x, Shape{5, -1}); err == nil {
		t.Error("expected error for non-divisible inference")
	}
	if _, err := Reshape(x, Shape{-1, -1}); err == nil {
		t.Error("expected error for two inferred dimensions")
	}
}

func TestTransposeAxes(t *testing.T) {
	x, _ := FromFloat32(Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	defer x.Release()

	y, err := TransposeAxes(x)
	if err != nil {
		t.Fatalf("TransposeAxes failed: %v", err)
	}
	defer y.Release()

	want := []float32{1, 4, 2, 5, 3, 6}
	got := y.AsFloat32()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("data[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTransposeNHWCToNCHW(t *testing.T) {
	// 1x1x2x3 channels-last: two pixels with RGB each.
	x, _ := FromFloat32(Shape{1, 1, 2, 3}, []float32{1, 2, 3, 4, 5, 6})
	defer x.Release()

	y, err := TransposeAxes(x, 0, 3, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer y.Release()

	if !y.Shape().Equal(Shape{1, 3, 1, 2}) {
		t.Fatalf("shape = %v", y.Shape())
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i, v := range y.AsFloat32() {
		if v != want[i] {
			t.Errorf("data[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestReleaseIdempotent(t *testing.T) {
	x, _ := NewRaw(Shape{2}, Float32)
	x.Release()
	x.Release()
	if !x.Released() {
		t.Error("expected tensor to be released")
	}

	var nilTensor *RawTensor
	nilTensor.Release()
}

func TestScopeReleasesAll(t *testing.T) {
	var s Scope
	a, _ := NewRaw(Shape{1}, Float32)
	b, _ := NewRaw(Shape{1}, Int64)
	s.Track(a)
	s.Track(b)
	s.Track(nil)

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	s.Release()

	if !a.Released() || !b.Released() {
		t.Error("expected all tracked tensors released")
	}
	if s.Len() != 0 {
		t.Errorf("Len after release = %d", s.Len())
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b    Shape
		want    Shape
		wantErr bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, false},
		{Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, false},
		{Shape{1, 4, 4, 3}, Shape{3}, Shape{1, 4, 4, 3}, false},
		{Shape{3, 4}, Shape{3, 5}, nil, true},
	}

	for _, tt := range tests {
		got, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			if err == nil {
				t.Errorf("BroadcastShapes(%v, %v) expected error", tt.a, tt.b)
			}
			continue
		}
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v) error: %v", tt.a, tt.b, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("BroadcastShapes(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBroadcastIndex(t *testing.T) {
	out := Shape{2, 3}
	// Row vector broadcast over rows.
	if got := BroadcastIndex(4, out, Shape{3}); got != 1 {
		t.Errorf("BroadcastIndex row = %d, want 1", got)
	}
	// Column vector broadcast over columns.
	if got := BroadcastIndex(4, out, Shape{2, 1}); got != 1 {
		t.Errorf("BroadcastIndex col = %d, want 1", got)
	}
	// Scalar.
	if got := BroadcastIndex(5, out, Shape{}); got != 0 {
		t.Errorf("BroadcastIndex scalar = %d, want 0", got)
	}
}
