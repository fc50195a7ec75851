//go:build !nogpu

package halgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// StagingUsage is the usage of buffers created by CreateStagingBuffer.
const StagingUsage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// Buffer is a hal buffer owned by a Device. It implements
// frameloop.StagingBuffer, and frameloop.Releaser so that it can be handed
// to a DeleteQueue.
type Buffer struct {
	device *Device
	buf    hal.Buffer
	size   uint64
	label  string
	once   sync.Once
}

// CreateBuffer creates a buffer of size bytes.
func (d *Device) CreateBuffer(label string, size uint64, usage gputypes.BufferUsage) (*Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked(); err != nil {
		return nil, err
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create buffer %q: %w", label, err)
	}
	return &Buffer{device: d, buf: buf, size: size, label: label}, nil
}

// CreateStagingBuffer creates a host-writable copy source. It makes Device a
// frameloop.StagingFactory.
func (d *Device) CreateStagingBuffer(size uint64) (frameloop.StagingBuffer, error) {
	return d.CreateBuffer("frameloop_staging", size, StagingUsage)
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	return b.label
}

// Raw returns the underlying hal.Buffer.
func (b *Buffer) Raw() hal.Buffer {
	return b.buf
}

// Write uploads data at offset through the queue.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("halgpu: write of %d bytes at %d overflows %q (%d bytes)",
			len(data), offset, b.label, b.size)
	}
	b.device.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// Read reads size bytes at offset back from the device. The buffer must
// have been created with gputypes.BufferUsageMapRead.
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	data := make([]byte, size)
	if err := b.device.queue.ReadBuffer(b.buf, offset, data); err != nil {
		return nil, fmt.Errorf("halgpu: read %q: %w", b.label, err)
	}
	return data, nil
}

// Destroy frees the buffer. It is safe to call more than once.
func (b *Buffer) Destroy() {
	b.once.Do(func() {
		b.device.device.DestroyBuffer(b.buf)
	})
}

// Release destroys the buffer.
func (b *Buffer) Release() {
	b.Destroy()
}

var (
	_ frameloop.StagingBuffer  = (*Buffer)(nil)
	_ frameloop.Releaser       = (*Buffer)(nil)
	_ frameloop.StagingFactory = (*Device)(nil)
)
