package simulated

import (
	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/backend"
)

func init() {
	backend.Register(backend.Simulated, func() (backend.DeviceBackend, error) {
		return &deviceBackend{device: NewDevice(Config{})}, nil
	})
}

// deviceBackend exposes a Device through the backend registry.
type deviceBackend struct {
	device *Device
}

func (b *deviceBackend) Name() string                      { return backend.Simulated }
func (b *deviceBackend) Device() frameloop.Device          { return b.device }
func (b *deviceBackend) Staging() frameloop.StagingFactory { return b.device }

func (b *deviceBackend) CreateBuffer(_ string, size uint64) (backend.DeviceBuffer, error) {
	return NewBuffer(size), nil
}

// Close waits for the queued submissions and stops the device.
func (b *deviceBackend) Close() error {
	err := b.device.WaitIdle()
	b.device.Close()
	return err
}

// FromBackend returns the simulated Device behind b, if any.
func FromBackend(b backend.DeviceBackend) (*Device, bool) {
	db, ok := b.(*deviceBackend)
	if !ok {
		return nil, false
	}
	return db.device, true
}
