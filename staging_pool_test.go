package frameloop

import (
	"errors"
	"strings"
	"testing"
)

func TestStagingClass(t *testing.T) {
	tests := []struct {
		size uint64
		want uint64
	}{
		{0, MinStagingClassSize},
		{1, MinStagingClassSize},
		{256, 256},
		{257, 512},
		{1000, 1024},
		{1 << 20, 1 << 20},
		{(1 << 20) + 1, 1 << 21},
		{MaxStagingSize, MaxStagingSize},
		{MaxStagingSize - 1, MaxStagingSize},
	}
	for _, tt := range tests {
		if got := stagingClass(tt.size); got != tt.want {
			t.Errorf("stagingClass(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestStagingPool_Reuse(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewStagingPool(factory, StagingPoolConfig{})

	a, err := pool.Acquire(300)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if a.Size() != 512 {
		t.Errorf("Size() = %d, want 512", a.Size())
	}
	pool.Release(a)

	b, err := pool.Acquire(400)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if b != a {
		t.Error("Acquire should reuse the idle buffer of the same class")
	}

	s := pool.Stats()
	if s.Created != 1 || s.Reused != 1 || s.InUse != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestStagingPool_MaxIdle(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewStagingPool(factory, StagingPoolConfig{MaxIdlePerClass: 1})

	a, _ := pool.Acquire(100)
	b, _ := pool.Acquire(100)
	pool.Release(a)
	pool.Release(b)

	if s := pool.Stats(); s.Idle != 1 {
		t.Errorf("Idle = %d, want 1", s.Idle)
	}
	if b.(*fakeBuffer).destroyed.Load() != 1 {
		t.Error("buffer beyond MaxIdlePerClass should be destroyed")
	}
}

func TestStagingPool_Budget(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewStagingPool(factory, StagingPoolConfig{BudgetBytes: 1024})

	a, err := pool.Acquire(1024)
	if err != nil {
		t.Fatalf("Acquire(1024) error = %v", err)
	}
	if _, err := pool.Acquire(256); !errors.Is(err, ErrStagingBudgetExceeded) {
		t.Fatalf("Acquire over budget error = %v, want ErrStagingBudgetExceeded", err)
	}

	// An idle buffer of another class is evicted to make room.
	pool.Release(a)
	b, err := pool.Acquire(256)
	if err != nil {
		t.Fatalf("Acquire after release error = %v", err)
	}
	if a.(*fakeBuffer).destroyed.Load() != 1 {
		t.Error("idle buffer should have been evicted")
	}
	if s := pool.Stats(); s.Evicted != 1 || s.LiveBytes != 256 {
		t.Errorf("Stats() = %+v", s)
	}
	pool.Release(b)
}

func TestStagingPool_OversizedRequest(t *testing.T) {
	for _, budget := range []int64{0, 1 << 20} {
		factory := &fakeFactory{}
		pool := NewStagingPool(factory, StagingPoolConfig{BudgetBytes: budget})
		for _, size := range []uint64{MaxStagingSize + 1, 1<<63 + 1, ^uint64(0)} {
			if _, err := pool.Acquire(size); !errors.Is(err, ErrStagingBudgetExceeded) {
				t.Errorf("budget %d: Acquire(%d) error = %v, want ErrStagingBudgetExceeded", budget, size, err)
			}
		}
		if len(factory.created) != 0 {
			t.Errorf("budget %d: created %d buffers for oversized requests", budget, len(factory.created))
		}
		pool.Close()
	}
}

func TestStagingPool_FactoryError(t *testing.T) {
	pool := NewStagingPool(&fakeFactory{err: errors.New("device lost")}, StagingPoolConfig{BudgetBytes: 512})
	if _, err := pool.Acquire(512); err == nil {
		t.Fatal("Acquire should fail when the factory fails")
	}

	// The failed attempt must not leak budget.
	pool.factory = &fakeFactory{}
	if _, err := pool.Acquire(512); err != nil {
		t.Errorf("Acquire after factory failure error = %v", err)
	}
}

func TestStagingPool_Close(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewStagingPool(factory, StagingPoolConfig{})

	idle, _ := pool.Acquire(10)
	busy, _ := pool.Acquire(10)
	pool.Release(idle)

	pool.Close()
	pool.Close()

	if idle.(*fakeBuffer).destroyed.Load() != 1 {
		t.Error("Close should destroy idle buffers")
	}
	if _, err := pool.Acquire(10); !errors.Is(err, ErrStagingPoolClosed) {
		t.Errorf("Acquire after Close error = %v, want ErrStagingPoolClosed", err)
	}

	pool.Release(busy)
	if busy.(*fakeBuffer).destroyed.Load() != 1 {
		t.Error("buffers released after Close should be destroyed")
	}
}

func TestStagingPool_ReleaseForeign(t *testing.T) {
	pool := NewStagingPool(&fakeFactory{}, StagingPoolConfig{})
	foreign := newFakeBuffer(64)
	pool.Release(foreign)
	pool.Release(nil)
	if foreign.destroyed.Load() != 1 {
		t.Error("foreign buffer should be destroyed")
	}
}

func TestStagingStats_String(t *testing.T) {
	s := StagingStats{LiveBytes: 4096, InUse: 1, Idle: 2, Created: 3}
	if got := s.String(); !strings.Contains(got, "4 KB live") {
		t.Errorf("String() = %q", got)
	}
}
