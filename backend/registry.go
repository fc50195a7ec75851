package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/frameloop"
)

// Factory opens a new backend instance.
type Factory func() (DeviceBackend, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)

	// backendPriority is the order OpenDefault tries. The simulated device
	// executes copies, the headless one does not.
	backendPriority = []string{Simulated, Headless}
)

// Register makes factory available under name, replacing any previous
// registration. Backend packages call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes name from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens the backend registered as name.
func Open(name string) (DeviceBackend, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
	}
	return b, nil
}

// OpenDefault opens the first backend in priority order that opens
// successfully, then any other registered backend.
func OpenDefault() (DeviceBackend, error) {
	candidates := slices.Clone(backendPriority)
	for _, name := range Available() {
		if !slices.Contains(candidates, name) {
			candidates = append(candidates, name)
		}
	}

	for _, name := range candidates {
		if !IsRegistered(name) {
			continue
		}
		b, err := Open(name)
		if err != nil {
			frameloop.Logger().Warn("backend: open failed", "backend", name, "err", err)
			continue
		}
		return b, nil
	}
	return nil, ErrBackendNotAvailable
}
