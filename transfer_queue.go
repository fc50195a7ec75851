package frameloop

import (
	"fmt"
	"slices"
	"sync"
)

// CopyID identifies a copy operation registered with a TransferQueue.
// The zero CopyID is never assigned.
type CopyID uint64

// CopyState is the stage a copy operation is in.
type CopyState int

const (
	// CopyPending means the copy is registered but not yet recorded.
	CopyPending CopyState = iota

	// CopyRecorded means the copy was recorded into a command buffer whose
	// completion has not been confirmed.
	CopyRecorded

	// CopyReadyToClear means the device finished the copy and its source may
	// be released.
	CopyReadyToClear
)

// String returns the string representation of CopyState.
func (s CopyState) String() string {
	switch s {
	case CopyPending:
		return "Pending"
	case CopyRecorded:
		return "Recorded"
	case CopyReadyToClear:
		return "ReadyToClear"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// TransferStats reports the number of copies in each stage.
type TransferStats struct {
	Pending      int
	Recorded     int
	ReadyToClear int

	// Released is the total number of copies whose source has been released.
	Released uint64
}

// String returns a human-readable string of transfer stats.
func (s TransferStats) String() string {
	return fmt.Sprintf("Transfers[pending=%d, recorded=%d, readyToClear=%d, released=%d]",
		s.Pending, s.Recorded, s.ReadyToClear, s.Released)
}

// copyData is one copy operation.
type copyData struct {
	id          CopyID
	source      BufferInfo
	destination BufferInfo

	// staging is set when the source was acquired by Copy and must go back
	// to the allocator.
	staging StagingBuffer

	// frame is the epoch of the command buffer the copy was recorded into.
	frame uint64
}

// TransferOption configures a TransferQueue.
type TransferOption func(*TransferQueue)

// WithStagingAllocator sets the allocator used by Copy for staging buffers.
func WithStagingAllocator(a StagingAllocator) TransferOption {
	return func(q *TransferQueue) {
		q.allocator = a
	}
}

// WithTransferDeleteQueue routes released sources through dq instead of
// releasing them directly.
func WithTransferDeleteQueue(dq *DeleteQueue) TransferOption {
	return func(q *TransferQueue) {
		q.deleteQueue = dq
	}
}

// TransferQueue tracks buffer copies from registration, through recording
// into a command buffer, to confirmed completion, and releases the copy
// sources once the device is done with them.
//
// Each copy lives in exactly one of three lists and only moves forward:
//
//	Pending --Record--> Recorded --Complete--> ReadyToClear --Collect--> released
//
// Add and Copy may be called from any goroutine at any time. Record is
// serialized internally and drains whatever is pending when it starts.
//
// TransferQueue is safe for concurrent use.
type TransferQueue struct {
	// recording serializes Record calls.
	recording sync.Mutex

	mu           sync.Mutex
	nextID       CopyID
	pending      []copyData
	recorded     []copyData
	readyToClear []copyData
	released     uint64

	allocator   StagingAllocator
	deleteQueue *DeleteQueue
}

// NewTransferQueue creates an empty TransferQueue.
func NewTransferQueue(opts ...TransferOption) *TransferQueue {
	q := &TransferQueue{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add registers a copy of src into dst.
// If src.Buffer implements Releaser it is released once the copy completes.
func (q *TransferQueue) Add(src, dst BufferInfo) CopyID {
	return q.add(copyData{source: src, destination: dst})
}

// Copy acquires a staging buffer sized for data, writes data into it and
// registers a copy into dst. Empty data is a no-op and returns a zero
// CopyID.
func (q *TransferQueue) Copy(data []byte, dst BufferInfo) (CopyID, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if q.allocator == nil {
		return 0, ErrNoStagingAllocator
	}

	size := uint64(len(data))
	staging, err := q.allocator.Acquire(size)
	if err != nil {
		return 0, fmt.Errorf("acquire staging buffer: %w", err)
	}
	if err := staging.Write(0, data); err != nil {
		q.allocator.Release(staging)
		return 0, fmt.Errorf("write staging buffer: %w", err)
	}

	if dst.Range == 0 || dst.Range > size {
		dst.Range = size
	}
	return q.add(copyData{
		source:      BufferInfo{Buffer: staging, Range: size},
		destination: dst,
		staging:     staging,
	}), nil
}

func (q *TransferQueue) add(c copyData) CopyID {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	c.id = q.nextID
	q.pending = append(q.pending, c)
	return c.id
}

// Record emits every pending copy into cb and moves them to the Recorded
// stage, tagged with cb.Epoch(). It first runs a Collect pass. It returns
// the number of copies recorded.
//
// The device commands are issued from a snapshot without holding the list
// lock, so Add and Copy callers are never blocked behind command emission.
// The batch stays Pending until it is moved under the lock afterwards.
func (q *TransferQueue) Record(cb CommandBuffer) int {
	q.recording.Lock()
	defer q.recording.Unlock()

	q.Collect()

	q.mu.Lock()
	batch := slices.Clone(q.pending)
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	epoch := cb.Epoch()
	for i := range batch {
		cb.CopyBuffer(batch[i].source, batch[i].destination)
		batch[i].frame = epoch
	}

	// Only Record and Clear remove pending copies, both under q.recording,
	// so the batch is still the head of the list.
	q.mu.Lock()
	q.pending = slices.Delete(q.pending, 0, len(batch))
	q.recorded = append(q.recorded, batch...)
	q.mu.Unlock()

	Logger().Debug("transfer queue: recorded copies", "frame", epoch, "count", len(batch))
	return len(batch)
}

// Complete confirms that every command buffer recorded for frames up to and
// including frame has finished executing. Matching Recorded copies move to
// ReadyToClear. It returns the number moved.
func (q *TransferQueue) Complete(frame uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.recorded[:0]
	moved := 0
	for _, c := range q.recorded {
		if c.frame <= frame {
			q.readyToClear = append(q.readyToClear, c)
			moved++
			continue
		}
		kept = append(kept, c)
	}
	clear(q.recorded[len(kept):])
	q.recorded = kept
	return moved
}

// Collect releases the sources of every ReadyToClear copy and returns how
// many were released.
func (q *TransferQueue) Collect() int {
	q.mu.Lock()
	ready := q.readyToClear
	q.readyToClear = nil
	q.released += uint64(len(ready))
	q.mu.Unlock()

	for i := range ready {
		q.releaseSource(&ready[i])
	}
	return len(ready)
}

// Clear drops every copy regardless of stage and releases their sources.
// Only call it once the device is idle.
func (q *TransferQueue) Clear() int {
	q.recording.Lock()
	defer q.recording.Unlock()

	q.mu.Lock()
	all := make([]copyData, 0, len(q.pending)+len(q.recorded)+len(q.readyToClear))
	all = append(all, q.pending...)
	all = append(all, q.recorded...)
	all = append(all, q.readyToClear...)
	q.pending, q.recorded, q.readyToClear = nil, nil, nil
	q.released += uint64(len(all))
	q.mu.Unlock()

	for i := range all {
		q.releaseSource(&all[i])
	}
	return len(all)
}

// State reports the stage of copy id. The second result is false once the
// copy has been released.
func (q *TransferQueue) State(id CopyID) (CopyState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lists := [...][]copyData{q.pending, q.recorded, q.readyToClear}
	for state, list := range lists {
		for i := range list {
			if list[i].id == id {
				return CopyState(state), true
			}
		}
	}
	return 0, false
}

// Stats returns the number of copies in each stage.
func (q *TransferQueue) Stats() TransferStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return TransferStats{
		Pending:      len(q.pending),
		Recorded:     len(q.recorded),
		ReadyToClear: len(q.readyToClear),
		Released:     q.released,
	}
}

// releaseSource hands the copy's source back, either to the delete queue or
// directly.
func (q *TransferQueue) releaseSource(c *copyData) {
	var r Releaser
	switch {
	case c.staging != nil && q.allocator != nil:
		staging, allocator := c.staging, q.allocator
		r = ReleaseFunc(func() { allocator.Release(staging) })
	case c.staging != nil:
		r = ReleaseFunc(c.staging.Destroy)
	default:
		r, _ = c.source.Buffer.(Releaser)
	}
	if r == nil {
		return
	}

	if q.deleteQueue != nil {
		q.deleteQueue.Add(r)
		return
	}
	r.Release()
}
