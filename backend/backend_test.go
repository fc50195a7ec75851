package backend

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/frameloop"
)

// fakeBackend is a DeviceBackend with no device behind it.
type fakeBackend struct {
	name   string
	closed bool
}

func (b *fakeBackend) Name() string                      { return b.name }
func (b *fakeBackend) Device() frameloop.Device          { return nil }
func (b *fakeBackend) Staging() frameloop.StagingFactory { return nil }
func (b *fakeBackend) CreateBuffer(string, uint64) (DeviceBuffer, error) {
	return nil, errors.New("fake: no buffers")
}
func (b *fakeBackend) Close() error { b.closed = true; return nil }

func register(t *testing.T, name string, factory Factory) {
	t.Helper()
	Register(name, factory)
	t.Cleanup(func() { Unregister(name) })
}

func fakeFactory(name string) Factory {
	return func() (DeviceBackend, error) { return &fakeBackend{name: name}, nil }
}

func TestRegistryRegisterAndOpen(t *testing.T) {
	register(t, "test-open", fakeFactory("test-open"))

	b, err := Open("test-open")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b.Name() != "test-open" {
		t.Errorf("Name() = %q, want %q", b.Name(), "test-open")
	}
}

func TestRegistryOpenErrors(t *testing.T) {
	boom := errors.New("boom")
	register(t, "test-broken", func() (DeviceBackend, error) { return nil, boom })

	tests := []struct {
		name string
		want error
	}{
		{"test-missing", ErrBackendNotAvailable},
		{"test-broken", boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.name)
			if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, tt.want) {
				t.Errorf("Open(%q) error = %v, want %v", tt.name, err, tt.want)
			}
		})
	}
}

func TestRegistryAvailable(t *testing.T) {
	register(t, "test-b", fakeFactory("test-b"))
	register(t, "test-a", fakeFactory("test-a"))

	names := Available()
	if !slices.IsSorted(names) {
		t.Errorf("Available() = %v, want sorted", names)
	}
	for _, want := range []string{"test-a", "test-b"} {
		if !slices.Contains(names, want) {
			t.Errorf("Available() = %v, missing %q", names, want)
		}
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-gone", fakeFactory("test-gone"))
	if !IsRegistered("test-gone") {
		t.Fatal("IsRegistered() = false after Register")
	}
	Unregister("test-gone")
	if IsRegistered("test-gone") {
		t.Error("IsRegistered() = true after Unregister")
	}
}

func TestRegistryOpenDefault(t *testing.T) {
	saved := backends
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
	registryMu.Lock()
	backends = make(map[string]Factory)
	registryMu.Unlock()

	if _, err := OpenDefault(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenDefault() with no backends error = %v", err)
	}

	Register("zzz-other", fakeFactory("zzz-other"))
	Register(Headless, fakeFactory(Headless))
	Register(Simulated, func() (DeviceBackend, error) { return nil, errors.New("unavailable") })

	b, err := OpenDefault()
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	if b.Name() != Headless {
		t.Errorf("OpenDefault() = %q, want the first working backend by priority %q", b.Name(), Headless)
	}
}

func TestRegistryConcurrentRegister(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			Register("test-race", fakeFactory("test-race"))
		}
	}()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_ = Available()
		select {
		case <-done:
			Unregister("test-race")
			return
		default:
		}
	}
	t.Fatal("Register did not finish")
}
