//go:build !nogpu

package halgpu

import (
	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/backend"
	"github.com/gogpu/gputypes"
)

func init() {
	backend.Register(backend.Headless, func() (backend.DeviceBackend, error) {
		d, err := OpenHeadless()
		if err != nil {
			return nil, err
		}
		return headless{d}, nil
	})
}

// headless exposes a noop HAL Device through the backend registry.
type headless struct {
	d *Device
}

func (h headless) Name() string                      { return backend.Headless }
func (h headless) Device() frameloop.Device          { return h.d }
func (h headless) Staging() frameloop.StagingFactory { return h.d }
func (h headless) Close() error                      { return h.d.Close() }

func (h headless) CreateBuffer(label string, size uint64) (backend.DeviceBuffer, error) {
	buf, err := h.d.CreateBuffer(label, size, gputypes.BufferUsageCopyDst|gputypes.BufferUsageCopySrc)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
