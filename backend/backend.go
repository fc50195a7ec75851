package backend

import (
	"errors"

	"github.com/gogpu/frameloop"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or could not be opened.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Registered backend names.
const (
	// Headless runs the hal path on the noop HAL: nothing executes and
	// every fence signals on submission.
	Headless = "headless"

	// Simulated executes copies on host memory after a configurable
	// latency.
	Simulated = "simulated"
)

// DeviceBuffer is a device-local buffer that copies can target.
type DeviceBuffer interface {
	frameloop.Buffer
	frameloop.Releaser
}

// DeviceBackend is an opened device together with the factory for its
// staging buffers.
type DeviceBackend interface {
	// Name returns the backend identifier (e.g., "simulated", "headless").
	Name() string

	// Device returns the device tasks record and submit to.
	Device() frameloop.Device

	// Staging returns the factory a frameloop.StagingPool draws from.
	Staging() frameloop.StagingFactory

	// CreateBuffer creates a device-local buffer usable as a copy
	// destination.
	CreateBuffer(label string, size uint64) (DeviceBuffer, error)

	// Close waits for the device to go idle and releases it.
	// The backend should not be used after Close is called.
	Close() error
}
