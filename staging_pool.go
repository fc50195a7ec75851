package frameloop

import (
	"fmt"
	"math/bits"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Default staging pool limits.
const (
	// DefaultMaxIdlePerClass is how many idle buffers each size class keeps.
	DefaultMaxIdlePerClass = 4

	// MinStagingClassSize is the smallest staging allocation (256 bytes).
	MinStagingClassSize = 256

	// MaxStagingSize is the largest request Acquire accepts. Its size class
	// still fits the budget's int64 weight.
	MaxStagingSize = 1 << 62
)

// StagingPoolConfig holds configuration for creating a StagingPool.
type StagingPoolConfig struct {
	// BudgetBytes caps the bytes held by live staging buffers, idle or in
	// use. Zero means unlimited.
	BudgetBytes int64

	// MaxIdlePerClass is the number of idle buffers kept per size class.
	// Defaults to DefaultMaxIdlePerClass if <= 0.
	MaxIdlePerClass int
}

// StagingStats contains staging pool statistics.
type StagingStats struct {
	// LiveBytes is the size of all live buffers, idle or in use.
	LiveBytes uint64

	// InUse is the number of buffers handed out and not yet released.
	InUse int

	// Idle is the number of buffers waiting for reuse.
	Idle int

	// Created is the total number of buffers created.
	Created uint64

	// Reused is the total number of acquisitions served from an idle buffer.
	Reused uint64

	// Evicted is the total number of idle buffers destroyed.
	Evicted uint64
}

// String returns a human-readable string of staging stats.
func (s StagingStats) String() string {
	return fmt.Sprintf("Staging[%d KB live, %d in use, %d idle, %d created, %d reused, %d evicted]",
		s.LiveBytes/1024, s.InUse, s.Idle, s.Created, s.Reused, s.Evicted)
}

// StagingPool is a StagingAllocator that recycles staging buffers by
// power-of-two size class and enforces a memory budget.
//
// Staging buffers returned by the factory must be comparable (pointer
// types), since the pool tracks them by identity.
//
// StagingPool is safe for concurrent use.
type StagingPool struct {
	factory StagingFactory
	budget  *semaphore.Weighted // nil if unlimited
	maxIdle int

	mu      sync.Mutex
	idle    map[uint64][]StagingBuffer // size class -> idle buffers
	inUse   map[StagingBuffer]uint64   // buffer -> size class
	closed  bool
	stats   StagingStats
	idleLen int
}

// NewStagingPool creates a pool that creates buffers through factory.
func NewStagingPool(factory StagingFactory, cfg StagingPoolConfig) *StagingPool {
	maxIdle := cfg.MaxIdlePerClass
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdlePerClass
	}

	p := &StagingPool{
		factory: factory,
		maxIdle: maxIdle,
		idle:    make(map[uint64][]StagingBuffer),
		inUse:   make(map[StagingBuffer]uint64),
	}
	if cfg.BudgetBytes > 0 {
		p.budget = semaphore.NewWeighted(cfg.BudgetBytes)
	}
	return p
}

// stagingClass rounds size up to its power-of-two size class.
func stagingClass(size uint64) uint64 {
	if size <= MinStagingClassSize {
		return MinStagingClassSize
	}
	return 1 << bits.Len64(size-1)
}

// Acquire returns a staging buffer of at least size bytes. An idle buffer of
// the same class is reused when available. When the budget is exhausted,
// idle buffers of other classes are evicted before giving up with
// ErrStagingBudgetExceeded.
func (p *StagingPool) Acquire(size uint64) (StagingBuffer, error) {
	if size > MaxStagingSize {
		return nil, fmt.Errorf("%w: %d bytes requested", ErrStagingBudgetExceeded, size)
	}
	class := stagingClass(size)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrStagingPoolClosed
	}
	if free := p.idle[class]; len(free) > 0 {
		buf := free[len(free)-1]
		free[len(free)-1] = nil
		p.idle[class] = free[:len(free)-1]
		p.idleLen--
		p.inUse[buf] = class
		p.stats.Reused++
		p.mu.Unlock()
		return buf, nil
	}

	if !p.reserveLocked(class) {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d bytes requested", ErrStagingBudgetExceeded, class)
	}
	p.mu.Unlock()

	buf, err := p.factory.CreateStagingBuffer(class)
	if err != nil {
		p.unreserve(class)
		return nil, err
	}

	p.mu.Lock()
	p.inUse[buf] = class
	p.stats.Created++
	p.stats.LiveBytes += class
	p.mu.Unlock()

	return buf, nil
}

// Release returns buf to the pool. Buffers the pool did not hand out are
// destroyed.
func (p *StagingPool) Release(buf StagingBuffer) {
	if buf == nil {
		return
	}

	p.mu.Lock()
	class, ok := p.inUse[buf]
	if !ok {
		p.mu.Unlock()
		buf.Destroy()
		return
	}
	delete(p.inUse, buf)

	if !p.closed && len(p.idle[class]) < p.maxIdle {
		p.idle[class] = append(p.idle[class], buf)
		p.idleLen++
		p.mu.Unlock()
		return
	}
	p.stats.LiveBytes -= class
	p.mu.Unlock()

	buf.Destroy()
	p.unreserve(class)
}

// Close destroys every idle buffer. Buffers still in use are destroyed when
// released. Close is safe to call multiple times.
func (p *StagingPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = make(map[uint64][]StagingBuffer)
	p.idleLen = 0
	for class, free := range idle {
		p.stats.LiveBytes -= class * uint64(len(free))
	}
	p.mu.Unlock()

	for class, free := range idle {
		for _, buf := range free {
			buf.Destroy()
			p.unreserve(class)
		}
	}
}

// Stats returns current pool statistics.
func (p *StagingPool) Stats() StagingStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.InUse = len(p.inUse)
	s.Idle = p.idleLen
	return s
}

// reserveLocked takes class bytes from the budget, evicting idle buffers
// until it fits. Must be called with p.mu held.
func (p *StagingPool) reserveLocked(class uint64) bool {
	if p.budget == nil {
		return true
	}
	//nolint:gosec // G115: class is bounded by the budget check below
	if p.budget.TryAcquire(int64(class)) {
		return true
	}

	for c, free := range p.idle {
		for len(free) > 0 {
			buf := free[len(free)-1]
			free[len(free)-1] = nil
			free = free[:len(free)-1]
			p.idle[c] = free
			p.idleLen--
			p.stats.Evicted++
			p.stats.LiveBytes -= c

			buf.Destroy()
			p.budget.Release(int64(c)) //nolint:gosec // G115: c was reserved as int64

			if p.budget.TryAcquire(int64(class)) { //nolint:gosec // G115: see above
				return true
			}
		}
	}
	return false
}

func (p *StagingPool) unreserve(class uint64) {
	if p.budget != nil {
		p.budget.Release(int64(class)) //nolint:gosec // G115: class was reserved as int64
	}
}

// Ensure StagingPool implements StagingAllocator.
var _ StagingAllocator = (*StagingPool)(nil)
