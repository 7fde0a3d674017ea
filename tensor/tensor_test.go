// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/tensor"
)

func TestFromFloat32(t *testing.T) {
	x, err := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	defer x.Release()

	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, 6, x.NumElements())

	_, err = tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestReshapeSharesBuffer(t *testing.T) {
	x, err := tensor.FromFloat32(tensor.Shape{1, 4}, []float32{1, 2, 3, 4})
	require.NoError(t, err)

	y, err := tensor.Reshape(x, tensor.Shape{2, 2})
	require.NoError(t, err)

	x.Release()
	assert.True(t, x.Released())
	assert.False(t, y.Released())
	assert.Equal(t, []float32{1, 2, 3, 4}, y.AsFloat32())
	y.Release()
}

func TestNew(t *testing.T) {
	x, err := tensor.New(tensor.Shape{3}, tensor.Int64)
	require.NoError(t, err)
	defer x.Release()
	assert.Equal(t, []int64{0, 0, 0}, x.AsInt64())

	_, err = tensor.New(tensor.Shape{0, 3}, tensor.Float32)
	assert.Error(t, err)
}
