package simulated

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/frameloop"
)

// Buffer is a host-memory buffer. It serves both as a staging buffer and as
// a device buffer.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	destroyed atomic.Bool
}

// NewBuffer creates a zeroed buffer of size bytes.
func NewBuffer(size uint64) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// CreateStagingBuffer creates a buffer. It makes Device a
// frameloop.StagingFactory.
func (d *Device) CreateStagingBuffer(size uint64) (frameloop.StagingBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}
	return NewBuffer(size), nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

// Write copies data into the buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.destroyed.Load() {
		return fmt.Errorf("simulated: write to destroyed buffer")
	}
	if offset+uint64(len(data)) > b.Size() {
		return fmt.Errorf("simulated: write of %d bytes at %d overflows %d byte buffer",
			len(data), offset, b.Size())
	}
	b.mu.Lock()
	copy(b.data[offset:], data)
	b.mu.Unlock()
	return nil
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Destroy marks the buffer destroyed. Copies from or to a destroyed buffer
// are skipped and counted in Stats.UseAfterRelease.
func (b *Buffer) Destroy() {
	b.destroyed.Store(true)
}

// Release destroys the buffer.
func (b *Buffer) Release() {
	b.Destroy()
}

// Destroyed reports whether the buffer was destroyed.
func (b *Buffer) Destroyed() bool {
	return b.destroyed.Load()
}

// bufferCopy is a recorded copy.
type bufferCopy struct {
	src, dst       *Buffer
	srcOff, dstOff uint64
	size           uint64
}

// execute performs the copy. It reports false, copying nothing, if either
// buffer was destroyed.
func (c bufferCopy) execute() bool {
	if c.src.Destroyed() || c.dst.Destroyed() {
		return false
	}
	tmp := make([]byte, c.size)
	c.src.mu.Lock()
	copy(tmp, c.src.data[c.srcOff:c.srcOff+c.size])
	c.src.mu.Unlock()

	c.dst.mu.Lock()
	copy(c.dst.data[c.dstOff:], tmp)
	c.dst.mu.Unlock()
	return true
}

var (
	_ frameloop.StagingBuffer  = (*Buffer)(nil)
	_ frameloop.Releaser       = (*Buffer)(nil)
	_ frameloop.StagingFactory = (*Device)(nil)
)
