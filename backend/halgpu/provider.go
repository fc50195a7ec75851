//go:build !nogpu

package halgpu

import (
	"errors"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by device providers that expose their HAL
// objects (for example a gogpu application).
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider wraps the device and queue shared by provider, which
// must also expose HalDevice() and HalQueue(). The provider keeps ownership
// of both.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("halgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("halgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("halgpu: provider HalQueue is not hal.Queue")
	}
	return New(device, queue), nil
}
