//go:build !nogpu

package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// ErrNoAdapter is returned when an instance exposes no adapter.
var ErrNoAdapter = errors.New("halgpu: no adapter found")

// Open creates a standalone device on the registered HAL backend variant,
// preferring a discrete or integrated GPU. The returned Device owns the
// device and its instance; Close destroys them.
func Open(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("halgpu: backend %v not registered", variant)
	}
	return open(backend)
}

// OpenHeadless creates a device on the noop HAL. Commands are accepted and
// fences signal immediately, but no copy is ever executed. It is meant for
// running a frame loop without a GPU.
func OpenHeadless() (*Device, error) {
	return open(noop.API{})
}

func open(backend hal.Backend) (*Device, error) {
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}

	d := New(openDev.Device, openDev.Queue)
	d.destroy = func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	frameloop.Logger().Info("halgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}
