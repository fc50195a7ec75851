package frameloop

import (
	"context"
	"math"
	"time"
)

// WaitForever is a fence timeout that never expires.
const WaitForever = time.Duration(math.MaxInt64)

// Releaser is anything whose destruction must be deferred until the device
// is done with it. Release is called exactly once, by whoever owns the value
// at that time.
type Releaser interface {
	Release()
}

// ReleaseFunc adapts a function to the Releaser interface.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() { f() }

// Buffer is a device-visible memory allocation.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() uint64
}

// BufferInfo addresses a byte range within a Buffer.
type BufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

// Whole returns a BufferInfo covering all of b.
func Whole(b Buffer) BufferInfo {
	return BufferInfo{Buffer: b, Range: b.Size()}
}

// StagingBuffer is CPU-writable memory used as the source of a device copy.
type StagingBuffer interface {
	Buffer

	// Write copies data into the buffer at offset.
	Write(offset uint64, data []byte) error

	// Destroy frees the underlying allocation.
	Destroy()
}

// StagingAllocator hands out staging buffers. TransferQueue calls it but
// does not own the allocation policy.
type StagingAllocator interface {
	Acquire(size uint64) (StagingBuffer, error)
	Release(buf StagingBuffer)
}

// StagingFactory creates staging buffers for a StagingPool.
type StagingFactory interface {
	CreateStagingBuffer(size uint64) (StagingBuffer, error)
}

// CommandBuffer receives recorded device commands for one frame.
type CommandBuffer interface {
	// Epoch returns the frame the command buffer is recorded for.
	Epoch() uint64

	// CopyBuffer records a copy of src into dst. The copied size is the
	// smaller of the two ranges.
	CopyBuffer(src, dst BufferInfo)
}

// Fence is signaled by the device when a submission has finished executing.
type Fence interface {
	// Wait blocks until the fence is signaled or timeout elapses, and reports
	// whether it was signaled. A zero timeout polls without blocking;
	// WaitForever never times out.
	Wait(timeout time.Duration) (bool, error)

	// Release frees the fence and the command buffers it guards.
	Release()
}

// Device is the submission backend.
type Device interface {
	// NewCommandBuffer begins recording a command buffer for epoch.
	NewCommandBuffer(epoch uint64, label string) (CommandBuffer, error)

	// Submit ends recording of cbs, queues them for execution and returns a
	// fence signaled when all of them complete.
	Submit(cbs []CommandBuffer) (Fence, error)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
}

// CommandGraph is an independent unit of recordable work.
type CommandGraph interface {
	Record(cb CommandBuffer, stamp FrameStamp) error
}

// CommandGraphFunc adapts a function to the CommandGraph interface.
type CommandGraphFunc func(cb CommandBuffer, stamp FrameStamp) error

// Record calls f.
func (f CommandGraphFunc) Record(cb CommandBuffer, stamp FrameStamp) error { return f(cb, stamp) }

// ResourceHints carries sizing hints to the compile collaborator.
type ResourceHints struct {
	// StagingBytes is the expected staging memory needed by newly added
	// subgraphs.
	StagingBytes uint64
}

// Compiler prepares command graphs for recording.
type Compiler interface {
	Compile(ctx context.Context, graph CommandGraph, hints ResourceHints) error
}

// PresentationTarget displays submitted frames. Present returns an error
// wrapping ErrPresentationTargetLost when the target can no longer be used
// and must be recreated.
type PresentationTarget interface {
	Present(stamp FrameStamp) error
}
