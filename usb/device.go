package usb

// Device is the minimal interface a device must implement.
// It only handles non-EP0 (interrupt/bulk) transfers.
type Device interface {
	// HandleTransfer processes a non-EP0 transfer (interrupt/bulk).
	// ep is the endpoint number (without direction). dir is usbip.DirIn or usbip.DirOut.
	// For IN transfers, return the payload to send; for OUT, consume 'out' and return nil.
	HandleTransfer(ep uint32, dir uint32, out []byte) []byte
	GetDescriptor() *Descriptor
}

// ControlHandler is implemented by devices answering class requests on
// EP0 (HID SET_REPORT, SET_IDLE, ...). Requests the device does not handle
// fall back to the standard handling of the bus service.
type ControlHandler interface {
	HandleControl(setup Setup, out []byte) (in []byte, handled bool)
}

// Configurable is implemented by devices that track SET_CONFIGURATION.
type Configurable interface {
	SetConfiguration(value uint8)
}

// Detachable is implemented by devices that must know when the host side
// of a session goes away.
type Detachable interface {
	Detached()
}
