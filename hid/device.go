// Package hid provides the composite keyboard and mouse USB device of the
// host half.
package hid

import (
	"log/slog"
	"slices"

	"github.com/crolbar/yuki/arbiter"
	"github.com/crolbar/yuki/internal/ceiling"
	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/mouse"
	"github.com/crolbar/yuki/usb"
	"github.com/crolbar/yuki/usbip"
)

// Interface and endpoint numbers of the composite device.
const (
	KeyboardInterface = 0
	MouseInterface    = 1

	KeyboardEndpoint    = 1 // 0x81 IN, 0x01 OUT (LEDs)
	MouseEndpoint       = 2 // 0x82 IN
	reportTypeOutput    = 0x02
	protocolReport      = 1
	defaultIdleDuration = 0
)

// Config is the USB identity of the device.
type Config struct {
	VendorID     uint16 `help:"USB vendor id" default:"5824" env:"YUKI_USB_VID"`
	ProductID    uint16 `help:"USB product id" default:"10205" env:"YUKI_USB_PID"`
	Manufacturer string `help:"USB manufacturer string" default:"crolbar" env:"YUKI_USB_MANUFACTURER"`
	Product      string `help:"USB product string" default:"yuki" env:"YUKI_USB_PRODUCT"`
	Serial       string `help:"USB serial number string" default:"0001" env:"YUKI_USB_SERIAL"`
}

// slot is a single-report endpoint buffer.
type slot struct {
	pending []byte
	idle    []byte
}

// ifaceState is the HID class state of one interface.
type ifaceState struct {
	idle     uint8
	protocol uint8
}

// Device is the composite boot keyboard and wheel mouse.
type Device struct {
	descriptor usb.Descriptor
	logger     *slog.Logger

	configured  *ceiling.Resource[bool]
	kb          *ceiling.Resource[slot]
	mouse       *ceiling.Resource[slot]
	leds        *ceiling.Resource[keyboard.LEDState]
	dir         *ceiling.Resource[link.Direction]
	mouseActive *ceiling.Resource[bool]

	ifaces      [2]ifaceState
	ledCallback func(keyboard.LEDState)
}

// New returns the device. dir and mouseActive are shared with the tick task
// and gate the idle repeats of the interrupt endpoints: once the queued
// report is taken, a half that is not the host (or an inactive mouse)
// answers polls with zero-length reports.
func New(cfg Config, dir *ceiling.Resource[link.Direction], mouseActive *ceiling.Resource[bool], logger *slog.Logger) *Device {
	d := &Device{
		descriptor:  descriptor(cfg),
		logger:      logger,
		configured:  ceiling.New(false, ceiling.Tick, ceiling.USB),
		kb:          ceiling.New(slot{idle: make([]byte, keyboard.ReportSize)}, ceiling.Tick, ceiling.USB),
		mouse:       ceiling.New(slot{idle: make([]byte, mouse.ReportSize)}, ceiling.Tick, ceiling.USB),
		leds:        ceiling.New(keyboard.LEDState{}, ceiling.Tick, ceiling.USB),
		dir:         dir,
		mouseActive: mouseActive,
	}
	for i := range d.ifaces {
		d.ifaces[i] = ifaceState{idle: defaultIdleDuration, protocol: protocolReport}
	}
	return d
}

// SetLEDCallback sets a callback invoked from the USB task when the host
// changes the keyboard LEDs.
func (d *Device) SetLEDCallback(f func(keyboard.LEDState)) { d.ledCallback = f }

// LEDs returns the LED state last set by the host.
func (d *Device) LEDs() keyboard.LEDState { return d.leds.Load(ceiling.Tick) }

// Configured reports whether the host has configured the device.
func (d *Device) Configured() bool { return d.configured.Load(ceiling.Tick) }

func (d *Device) WriteKeyboard(report []byte) (int, error) {
	return d.write(d.kb, report, slices.Clone(report))
}

// WriteMouse queues a mouse report; its idle repeat keeps the buttons
// without motion.
func (d *Device) WriteMouse(report []byte) (int, error) {
	idle := make([]byte, len(report))
	if len(report) > 0 {
		idle[0] = report[0]
	}
	return d.write(d.mouse, report, idle)
}

func (d *Device) write(r *ceiling.Resource[slot], report, idle []byte) (int, error) {
	if !d.Configured() {
		return 0, arbiter.ErrNotConfigured
	}
	var err error
	r.Lock(ceiling.Tick, func(s *slot) {
		if s.pending != nil {
			err = arbiter.ErrBusy
			return
		}
		s.pending = slices.Clone(report)
		s.idle = idle
	})
	if err != nil {
		return 0, err
	}
	return len(report), nil
}

// Discard drops the queued reports the host has not taken yet.
func (d *Device) Discard() {
	d.kb.Lock(ceiling.Tick, func(s *slot) { s.pending = nil })
	d.mouse.Lock(ceiling.Tick, func(s *slot) { s.pending = nil })
}

// take hands out the pending report, or the idle report when none is
// queued and idle repeats are allowed.
func take(r *ceiling.Resource[slot], repeat bool) []byte {
	var out []byte
	r.Lock(ceiling.USB, func(s *slot) {
		if s.pending != nil {
			out, s.pending = s.pending, nil
			return
		}
		if repeat {
			out = slices.Clone(s.idle)
		}
	})
	return out
}

func (d *Device) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	if dir == usbip.DirOut {
		if ep == KeyboardEndpoint {
			d.setLEDs(out)
		}
		return nil
	}
	host := d.dir.Load(ceiling.USB) == link.ThisHalfIsHost
	switch ep {
	case KeyboardEndpoint:
		return take(d.kb, host)
	case MouseEndpoint:
		return take(d.mouse, host && d.mouseActive.Load(ceiling.USB))
	}
	return nil
}

// HandleControl answers HID class requests on EP0.
func (d *Device) HandleControl(setup usb.Setup, out []byte) ([]byte, bool) {
	if setup.Recipient() != usb.ReqRecipientInterface {
		return nil, false
	}
	n := setup.Interface()
	if int(n) >= len(d.ifaces) {
		return nil, false
	}
	st := &d.ifaces[n]

	switch setup.Request {
	case usb.HIDReqSetReport:
		if n == KeyboardInterface && uint8(setup.Value>>8) == reportTypeOutput {
			d.setLEDs(out)
		}
		return nil, true
	case usb.HIDReqGetReport:
		r := d.kb
		if n == MouseInterface {
			r = d.mouse
		}
		var rep []byte
		r.Lock(ceiling.USB, func(s *slot) { rep = slices.Clone(s.idle) })
		return rep, true
	case usb.HIDReqSetIdle:
		st.idle = uint8(setup.Value >> 8)
		return nil, true
	case usb.HIDReqGetIdle:
		return []byte{st.idle}, true
	case usb.HIDReqSetProtocol:
		st.protocol = uint8(setup.Value)
		return nil, true
	case usb.HIDReqGetProtocol:
		return []byte{st.protocol}, true
	}
	return nil, false
}

func (d *Device) setLEDs(out []byte) {
	var leds keyboard.LEDState
	if err := leds.UnmarshalBinary(out); err != nil {
		d.logger.Debug("short LED report", "len", len(out))
		return
	}
	if prev := d.leds.Load(ceiling.USB); prev == leds {
		return
	}
	d.leds.Store(ceiling.USB, leds)
	d.logger.Info("keyboard LEDs", "num", leds.NumLock, "caps", leds.CapsLock, "scroll", leds.ScrollLock)
	if d.ledCallback != nil {
		d.ledCallback(leds)
	}
}

// SetConfiguration is called by the bus service on SET_CONFIGURATION.
func (d *Device) SetConfiguration(value uint8) {
	d.reset()
	d.configured.Store(ceiling.USB, value != 0)
}

// Detached is called when the USB/IP session ends.
func (d *Device) Detached() {
	d.configured.Store(ceiling.USB, false)
	d.reset()
	d.logger.Info("usb host detached")
}

func (d *Device) reset() {
	d.kb.Lock(ceiling.USB, func(s *slot) { *s = slot{idle: make([]byte, keyboard.ReportSize)} })
	d.mouse.Lock(ceiling.USB, func(s *slot) { *s = slot{idle: make([]byte, mouse.ReportSize)} })
}

func (d *Device) GetDescriptor() *usb.Descriptor { return &d.descriptor }

func descriptor(cfg Config) usb.Descriptor {
	return usb.Descriptor{
		Device: usb.DeviceDescriptor{
			BcdUSB:             0x0200,
			BMaxPacketSize0:    0x40,
			IDVendor:           cfg.VendorID,
			IDProduct:          cfg.ProductID,
			BcdDevice:          0x0100,
			IManufacturer:      1,
			IProduct:           2,
			ISerialNumber:      3,
			BNumConfigurations: 1,
			Speed:              usb.SpeedFull,
		},
		Config: usb.ConfigHeader{
			BConfigurationValue: 1,
			BMAttributes:        0xA0, // bus powered, remote wakeup
			BMaxPower:           50,   // 100mA
		},
		Interfaces: []usb.InterfaceConfig{
			{
				Descriptor: usb.InterfaceDescriptor{
					BInterfaceNumber:   KeyboardInterface,
					BNumEndpoints:      2,
					BInterfaceClass:    usb.ClassHID,
					BInterfaceSubClass: usb.SubclassBoot,
					BInterfaceProtocol: usb.ProtocolKeyboard,
				},
				Endpoints: []usb.EndpointDescriptor{
					{BEndpointAddress: usb.EndpointIn | KeyboardEndpoint, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: keyboard.ReportSize, BInterval: 1},
					{BEndpointAddress: KeyboardEndpoint, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: 1, BInterval: 10},
				},
				HIDReport: keyboard.ReportDescriptor,
			},
			{
				Descriptor: usb.InterfaceDescriptor{
					BInterfaceNumber:   MouseInterface,
					BNumEndpoints:      1,
					BInterfaceClass:    usb.ClassHID,
					BInterfaceSubClass: usb.SubclassBoot,
					BInterfaceProtocol: usb.ProtocolMouse,
				},
				Endpoints: []usb.EndpointDescriptor{
					{BEndpointAddress: usb.EndpointIn | MouseEndpoint, BMAttributes: usb.EndpointInterrupt, WMaxPacketSize: mouse.ReportSize, BInterval: 1},
				},
				HIDReport: mouse.ReportDescriptor,
			},
		},
		Strings: map[uint8]string{
			1: cfg.Manufacturer,
			2: cfg.Product,
			3: cfg.Serial,
		},
	}
}
