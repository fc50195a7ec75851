// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package halgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/wgpu/hal"
)

// ErrDeviceLost is returned once the device failed a submission or was
// closed.
var ErrDeviceLost = errors.New("halgpu: device lost")

// idleTimeout bounds WaitIdle.
const idleTimeout = 5 * time.Second

// Device is a frameloop.Device backed by a hal.Device and its queue.
//
// Command buffers may be recorded concurrently from several goroutines.
// Encoder creation, fence creation and queue submission are serialized.
type Device struct {
	device hal.Device
	queue  hal.Queue

	mu     sync.Mutex
	lost   bool
	closed bool

	// destroy releases the device and instance when Device owns them.
	destroy func()
}

// New wraps device and queue. The caller keeps ownership of both.
func New(device hal.Device, queue hal.Queue) *Device {
	return &Device{device: device, queue: queue}
}

// HalDevice returns the wrapped hal.Device.
func (d *Device) HalDevice() hal.Device {
	return d.device
}

// HalQueue returns the wrapped hal.Queue.
func (d *Device) HalQueue() hal.Queue {
	return d.queue
}

// NewCommandBuffer begins a command encoder for epoch.
func (d *Device) NewCommandBuffer(epoch uint64, label string) (frameloop.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked(); err != nil {
		return nil, err
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	return &commandBuffer{encoder: encoder, epoch: epoch, label: label}, nil
}

// Submit ends the encoders of cbs and submits them in order. The returned
// fence is signaled once all of them have executed.
func (d *Device) Submit(cbs []frameloop.CommandBuffer) (frameloop.Fence, error) {
	encoders := make([]*commandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		c, ok := cb.(*commandBuffer)
		if !ok {
			discardAll(encoders)
			return nil, fmt.Errorf("halgpu: foreign command buffer %T", cb)
		}
		encoders = append(encoders, c)
	}
	for _, c := range encoders {
		if c.err != nil {
			discardAll(encoders)
			return nil, fmt.Errorf("halgpu: %s: %w", c.label, c.err)
		}
	}

	halCBs := make([]hal.CommandBuffer, 0, len(encoders))
	for i, c := range encoders {
		cmdBuf, err := c.encoder.EndEncoding()
		if err != nil {
			d.freeAll(halCBs)
			discardAll(encoders[i+1:])
			return nil, fmt.Errorf("halgpu: end encoding %s: %w", c.label, err)
		}
		halCBs = append(halCBs, cmdBuf)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked(); err != nil {
		d.freeAll(halCBs)
		return nil, err
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		d.freeAll(halCBs)
		return nil, fmt.Errorf("halgpu: create fence: %w", err)
	}
	if err := d.queue.Submit(halCBs, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.freeAll(halCBs)
		d.lost = true
		return nil, fmt.Errorf("%w: submit: %w", ErrDeviceLost, err)
	}

	return &Fence{device: d.device, fence: fence, cmdBufs: halCBs}, nil
}

// WaitIdle submits an empty batch and waits for it, which drains the queue.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("halgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit(nil, fence, 1); err != nil {
		return fmt.Errorf("halgpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, idleTimeout)
	if err != nil {
		return fmt.Errorf("halgpu: wait idle: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: device not idle after %v", frameloop.ErrTimeout, idleTimeout)
	}
	return nil
}

// Close waits for the queue to drain and rejects further work. A device
// passed to New is left alive; one opened by Open or OpenHeadless is
// destroyed.
func (d *Device) Close() error {
	err := d.WaitIdle()

	d.mu.Lock()
	wasClosed := d.closed
	d.closed = true
	d.mu.Unlock()

	if !wasClosed && d.destroy != nil {
		d.destroy()
	}

	frameloop.Logger().Debug("halgpu: device closed")
	return err
}

func (d *Device) usableLocked() error {
	switch {
	case d.closed:
		return fmt.Errorf("%w: device closed", ErrDeviceLost)
	case d.lost:
		return ErrDeviceLost
	}
	return nil
}

func (d *Device) freeAll(cmdBufs []hal.CommandBuffer) {
	for _, cb := range cmdBufs {
		d.device.FreeCommandBuffer(cb)
	}
}

// Fence is a hal fence guarding one submission. Release destroys the fence
// and frees the submitted command buffers.
type Fence struct {
	device  hal.Device
	fence   hal.Fence
	cmdBufs []hal.CommandBuffer
	once    sync.Once
}

// Wait blocks until the submission completed or timeout elapsed.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	ok, err := f.device.Wait(f.fence, 1, timeout)
	if err != nil {
		return false, fmt.Errorf("halgpu: wait fence: %w", err)
	}
	return ok, nil
}

// Release frees the fence and its command buffers. It must only be called
// once the fence is signaled.
func (f *Fence) Release() {
	f.once.Do(func() {
		f.device.DestroyFence(f.fence)
		for _, cb := range f.cmdBufs {
			f.device.FreeCommandBuffer(cb)
		}
		f.cmdBufs = nil
	})
}

var (
	_ frameloop.Device = (*Device)(nil)
	_ frameloop.Fence  = (*Fence)(nil)
)
