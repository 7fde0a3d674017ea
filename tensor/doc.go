// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the host tensors exchanged with depth networks.
//
// Tensors are reference counted: Clone adds a reference to the same
// buffer and Release drops one. The buffer is freed when the last
// reference is released. Every tensor returned by a network is owned by
// the caller.
//
//	x, _ := tensor.FromFloat32(tensor.Shape{1, 2, 2, 3}, pixels)
//	defer x.Release()
//
//	y, _ := model.Forward(x)
//	defer y.Release()
//	depth := y.AsFloat32()
package tensor
