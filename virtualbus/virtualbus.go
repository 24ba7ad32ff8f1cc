// Package virtualbus assigns USB/IP bus identities to emulated devices.
package virtualbus

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/crolbar/yuki/usb"
	"github.com/crolbar/yuki/usbip"
)

const basepath = "/sys/devices/platform/yuki/usb"

// VirtualBus is one USB bus exported over USB/IP.
type VirtualBus struct {
	mutex   sync.Mutex
	busId   uint32
	devices []busDevice
}

// DeviceMeta exposes a registered device and its export metadata.
type DeviceMeta struct {
	Dev  usb.Device
	Meta usbip.ExportMeta
}

type busDevice struct {
	DeviceMeta
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns an empty bus with the given number (0 selects 1).
func New(busId uint32) *VirtualBus {
	if busId == 0 {
		busId = 1
	}
	return &VirtualBus{busId: busId}
}

// BusID returns the bus number.
func (vb *VirtualBus) BusID() uint32 { return vb.busId }

// Add registers dev under the lowest free device number and returns its
// export metadata. The device's context is cancelled when it is removed or
// the bus is closed.
func (vb *VirtualBus) Add(dev usb.Device) (usbip.ExportMeta, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	used := map[uint32]bool{}
	for _, d := range vb.devices {
		if d.Dev == dev {
			return usbip.ExportMeta{}, fmt.Errorf("device already registered on bus %d", vb.busId)
		}
		used[d.Meta.DevId] = true
	}
	devID := uint32(1)
	for used[devID] {
		devID++
	}

	busDevID := fmt.Sprintf("%d-%d", vb.busId, devID)
	var meta usbip.ExportMeta
	copy(meta.Path[:], fmt.Sprintf("%s%d/%s", basepath, vb.busId, busDevID))
	copy(meta.USBBusId[:], busDevID)
	meta.BusId = vb.busId
	meta.DevId = devID

	ctx, cancel := context.WithCancel(context.Background())
	vb.devices = append(vb.devices, busDevice{DeviceMeta{dev, meta}, ctx, cancel})
	return meta, nil
}

// Devices returns a snapshot of the registered devices.
func (vb *VirtualBus) Devices() []DeviceMeta {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]DeviceMeta, 0, len(vb.devices))
	for _, d := range vb.devices {
		out = append(out, d.DeviceMeta)
	}
	return out
}

// Lookup finds a device by its "bus-dev" id and returns it with its context.
func (vb *VirtualBus) Lookup(busID string) (DeviceMeta, context.Context, bool) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, d := range vb.devices {
		id := d.Meta.USBBusId[:]
		if end := bytes.IndexByte(id, 0); end >= 0 {
			id = id[:end]
		}
		if string(id) == busID {
			return d.DeviceMeta, d.ctx, true
		}
	}
	return DeviceMeta{}, nil, false
}

// Remove unregisters dev and cancels its context.
func (vb *VirtualBus) Remove(dev usb.Device) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i, d := range vb.devices {
		if d.Dev == dev {
			d.cancel()
			vb.devices = append(vb.devices[:i], vb.devices[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("device not found on bus %d", vb.busId)
}

// Close removes every device.
func (vb *VirtualBus) Close() error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, d := range vb.devices {
		d.cancel()
	}
	vb.devices = nil
	return nil
}
