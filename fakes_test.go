package frameloop

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeBuffer is a host-memory Buffer, StagingBuffer and Releaser.
type fakeBuffer struct {
	size      uint64
	data      []byte
	destroyed atomic.Int32
	releases  atomic.Int32
}

func newFakeBuffer(size uint64) *fakeBuffer {
	return &fakeBuffer{size: size, data: make([]byte, size)}
}

func (b *fakeBuffer) Size() uint64 { return b.size }

func (b *fakeBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.size {
		return errors.New("fake: write out of range")
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *fakeBuffer) Destroy() { b.destroyed.Add(1) }
func (b *fakeBuffer) Release() { b.releases.Add(1) }

// fakeFactory creates fakeBuffers for a StagingPool.
type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeBuffer
	err     error
}

func (f *fakeFactory) CreateStagingBuffer(size uint64) (StagingBuffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := newFakeBuffer(size)
	f.mu.Lock()
	f.created = append(f.created, b)
	f.mu.Unlock()
	return b, nil
}

// copyRecord is one CopyBuffer call.
type copyRecord struct {
	src, dst BufferInfo
}

// fakeCommandBuffer records copies.
type fakeCommandBuffer struct {
	epoch  uint64
	label  string
	mu     sync.Mutex
	copies []copyRecord
}

func (cb *fakeCommandBuffer) Epoch() uint64 { return cb.epoch }

func (cb *fakeCommandBuffer) CopyBuffer(src, dst BufferInfo) {
	cb.mu.Lock()
	cb.copies = append(cb.copies, copyRecord{src: src, dst: dst})
	cb.mu.Unlock()
}

// fakeFence is signaled explicitly by the test.
type fakeFence struct {
	signaled chan struct{}
	once     sync.Once
	released atomic.Int32
	err      error
}

func newFakeFence() *fakeFence {
	return &fakeFence{signaled: make(chan struct{})}
}

func (f *fakeFence) signal() { f.once.Do(func() { close(f.signaled) }) }

func (f *fakeFence) Wait(timeout time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if timeout == 0 {
		select {
		case <-f.signaled:
			return true, nil
		default:
			return false, nil
		}
	}
	if timeout == WaitForever {
		<-f.signaled
		return true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.signaled:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (f *fakeFence) Release() { f.released.Add(1) }

// submission is one Device.Submit call.
type submission struct {
	epoch uint64
	label string
	fence *fakeFence
}

// fakeDevice records submissions. With autoSignal, fences are signaled on
// submit.
type fakeDevice struct {
	mu          sync.Mutex
	autoSignal  bool
	submitErr   error
	newErr      error
	onSubmit    func(cbs []CommandBuffer)
	submissions []submission
	buffers     []*fakeCommandBuffer
}

func (d *fakeDevice) NewCommandBuffer(epoch uint64, label string) (CommandBuffer, error) {
	if d.newErr != nil {
		return nil, d.newErr
	}
	cb := &fakeCommandBuffer{epoch: epoch, label: label}
	d.mu.Lock()
	d.buffers = append(d.buffers, cb)
	d.mu.Unlock()
	return cb, nil
}

func (d *fakeDevice) Submit(cbs []CommandBuffer) (Fence, error) {
	if d.onSubmit != nil {
		d.onSubmit(cbs)
	}
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	f := newFakeFence()
	if d.autoSignal {
		f.signal()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cb := range cbs {
		fcb := cb.(*fakeCommandBuffer)
		d.submissions = append(d.submissions, submission{epoch: fcb.epoch, label: fcb.label, fence: f})
	}
	return f, nil
}

func (d *fakeDevice) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.submissions {
		s.fence.signal()
	}
	return nil
}

func (d *fakeDevice) submitted() []submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]submission, len(d.submissions))
	copy(out, d.submissions)
	return out
}

// signalAll signals every fence submitted so far.
func (d *fakeDevice) signalAll() {
	_ = d.WaitIdle()
}

// fakeTarget is a PresentationTarget that records presented frames.
type fakeTarget struct {
	mu        sync.Mutex
	presented []uint64
	err       error
}

func (t *fakeTarget) Present(stamp FrameStamp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.presented = append(t.presented, stamp.FrameCount)
	return nil
}

func (t *fakeTarget) frames() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.presented))
	copy(out, t.presented)
	return out
}
