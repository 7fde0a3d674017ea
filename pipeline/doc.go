// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline runs real-time monocular depth estimation.
//
// A Pipeline takes one color frame per tick, resamples it to the
// network's input size, runs the depth network and leaves the result in a
// single-channel float32 depth buffer. Consumers subscribe to its event
// topics or read the buffers after each tick.
//
// # Basic Usage
//
//	dev, err := pipeline.OpenDevice("host", pipeline.Bilinear)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	p := pipeline.New(dev, pipeline.Options{CalculateExtents: true})
//	defer p.Dispose()
//
//	if err := p.Init(pipeline.ModelFile("midas_small.onnx")); err != nil {
//	    log.Fatal(err)
//	}
//
//	depths := make(chan pipeline.DepthEvent, 4)
//	_ = p.Events().DepthSolved.Subscribe("viewer", depths)
//
//	for frame := range camera {
//	    if _, err := p.Tick(frame); err != nil {
//	        log.Println(err)
//	    }
//	}
//
// # Lifecycle
//
// Uninitialized -> Ready (Init) -> Running (first tick with a frame) ->
// Disposed (Dispose). Per-tick errors never change the state.
//
// # Output Layouts
//
// Depth networks export their output either as (1, H, W, 1) or as any
// shape with W*H elements. LayoutAuto detects which from the declared
// output shape; LayoutDirect and LayoutReshape force one.
package pipeline
