//go:build !nogpu

// Package halgpu implements the frameloop device interfaces on top of the
// gogpu/wgpu hardware abstraction layer.
//
// A Device wraps a hal.Device and hal.Queue. Command buffers are hal command
// encoders, submissions are signaled through hal fences, and staging buffers
// are host-writable hal buffers filled with Queue.WriteBuffer.
//
// The device and queue can be passed in directly, or obtained from any
// gpucontext.DeviceProvider that exposes its HAL objects:
//
//	dev, err := halgpu.NewFromProvider(app)
//	if err != nil {
//		return err
//	}
//	pool := frameloop.NewStagingPool(dev, frameloop.StagingPoolConfig{})
//	task := frameloop.NewRecordAndSubmitTask("main", dev, graph)
//	task.AddTransferQueue(frameloop.NewTransferQueue(frameloop.WithStagingAllocator(pool)))
//
// Build with the nogpu tag to exclude this package.
package halgpu
