package usb

import (
	"encoding/binary"
	"fmt"
)

// Standard request codes.
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	ReqGetInterface     = 0x0A
	ReqSetInterface     = 0x0B
)

// HID class request codes.
const (
	HIDReqGetReport   = 0x01
	HIDReqGetIdle     = 0x02
	HIDReqGetProtocol = 0x03
	HIDReqSetReport   = 0x09
	HIDReqSetIdle     = 0x0A
	HIDReqSetProtocol = 0x0B
)

// bmRequestType fields.
const (
	ReqDirIn = 0x80

	ReqTypeMask     = 0x60
	ReqTypeStandard = 0x00
	ReqTypeClass    = 0x20

	ReqRecipientMask      = 0x1F
	ReqRecipientDevice    = 0x00
	ReqRecipientInterface = 0x01
	ReqRecipientEndpoint  = 0x02
)

// Setup is a decoded 8-byte control setup packet.
type Setup struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetup decodes a setup packet.
func ParseSetup(b []byte) (Setup, error) {
	if len(b) != 8 {
		return Setup{}, fmt.Errorf("setup packet: %d bytes, want 8", len(b))
	}
	return Setup{
		RequestType: b[0],
		Request:     b[1],
		Value:       binary.LittleEndian.Uint16(b[2:4]),
		Index:       binary.LittleEndian.Uint16(b[4:6]),
		Length:      binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// Bytes encodes the setup packet.
func (s Setup) Bytes() [8]byte {
	var b [8]byte
	b[0] = s.RequestType
	b[1] = s.Request
	binary.LittleEndian.PutUint16(b[2:4], s.Value)
	binary.LittleEndian.PutUint16(b[4:6], s.Index)
	binary.LittleEndian.PutUint16(b[6:8], s.Length)
	return b
}

// In reports a device-to-host request.
func (s Setup) In() bool { return s.RequestType&ReqDirIn != 0 }

// Type returns the request type bits (standard, class, vendor).
func (s Setup) Type() uint8 { return s.RequestType & ReqTypeMask }

// Recipient returns the recipient bits.
func (s Setup) Recipient() uint8 { return s.RequestType & ReqRecipientMask }

// Interface returns the interface number addressed by an interface request.
func (s Setup) Interface() uint8 { return uint8(s.Index) }

// Clip truncates a reply to the requested length.
func (s Setup) Clip(data []byte) []byte {
	if int(s.Length) < len(data) {
		return data[:s.Length]
	}
	return data
}
