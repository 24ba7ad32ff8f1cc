// Package usb contains helpers for building USB descriptors and decoding
// control requests.
package usb

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// USB descriptor type constants
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Descriptor lengths in bytes
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
	HIDDescLen       = 9
)

// Interface classes and endpoint attributes used by HID devices.
const (
	ClassHID          = 0x03
	SubclassBoot      = 0x01
	ProtocolKeyboard  = 0x01
	ProtocolMouse     = 0x02
	EndpointInterrupt = 0x03
	EndpointIn        = 0x80
)

// Speed values reported over USB/IP.
const (
	SpeedLow  = 1
	SpeedFull = 2
	SpeedHigh = 3
)

// Descriptor holds all static descriptor/config data for a device.
type Descriptor struct {
	Device     DeviceDescriptor
	Config     ConfigHeader
	Interfaces []InterfaceConfig
	Strings    map[uint8]string
}

// InterfaceConfig holds all descriptors for a single interface.
type InterfaceConfig struct {
	Descriptor InterfaceDescriptor
	Endpoints  []EndpointDescriptor
	HIDReport  []byte // HID report descriptor (0x22); nil for non-HID interfaces
}

// DeviceDescriptor represents the standard USB device descriptor.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
	Speed              uint32 // USB/IP speed, not part of the wire descriptor
}

// ConfigHeader represents the USB configuration descriptor header.
// WTotalLength and BNumInterfaces are filled in by ConfigBytes.
type ConfigHeader struct {
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8
}

// InterfaceDescriptor for each interface altsetting.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

// EndpointDescriptor for each endpoint.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

// put writes the length/type prefix followed by the little-endian fields of v.
func put(b *bytes.Buffer, length, typ uint8, v any) {
	b.WriteByte(length)
	b.WriteByte(typ)
	_ = binary.Write(b, binary.LittleEndian, v)
}

// DeviceBytes returns the 18-byte device descriptor.
func (d *Descriptor) DeviceBytes() []byte {
	dev := d.Device
	var b bytes.Buffer
	put(&b, DeviceDescLen, DeviceDescType, struct {
		BcdUSB                                           uint16
		Class, SubClass, Protocol, MaxPacket0            uint8
		Vendor, Product, BcdDevice                       uint16
		Manufacturer, ProductStr, Serial, Configurations uint8
	}{
		dev.BcdUSB,
		dev.BDeviceClass, dev.BDeviceSubClass, dev.BDeviceProtocol, dev.BMaxPacketSize0,
		dev.IDVendor, dev.IDProduct, dev.BcdDevice,
		dev.IManufacturer, dev.IProduct, dev.ISerialNumber, dev.BNumConfigurations,
	})
	return b.Bytes()
}

// HIDClassBytes returns the HID class descriptor (0x21) for an interface
// with one report descriptor of the given length.
func HIDClassBytes(reportLen int) []byte {
	var b bytes.Buffer
	put(&b, HIDDescLen, HIDDescType, struct {
		BcdHID       uint16
		Country, Num uint8
		ReportType   uint8
		ReportLen    uint16
	}{0x0111, 0, 1, ReportDescType, uint16(reportLen)})
	return b.Bytes()
}

// ConfigBytes returns the full configuration descriptor: header, then each
// interface followed by its HID class descriptor and endpoints.
func (d *Descriptor) ConfigBytes() []byte {
	var body bytes.Buffer
	for _, iface := range d.Interfaces {
		put(&body, InterfaceDescLen, InterfaceDescType, iface.Descriptor)
		if iface.HIDReport != nil {
			body.Write(HIDClassBytes(len(iface.HIDReport)))
		}
		for _, ep := range iface.Endpoints {
			put(&body, EndpointDescLen, EndpointDescType, ep)
		}
	}

	var b bytes.Buffer
	put(&b, ConfigDescLen, ConfigDescType, struct {
		TotalLength   uint16
		NumInterfaces uint8
		ConfigHeader
	}{uint16(ConfigDescLen + body.Len()), uint8(len(d.Interfaces)), d.Config})
	b.Write(body.Bytes())
	return b.Bytes()
}

// Interface returns the interface with the given number.
func (d *Descriptor) Interface(n uint8) (*InterfaceConfig, error) {
	for i := range d.Interfaces {
		if d.Interfaces[i].Descriptor.BInterfaceNumber == n {
			return &d.Interfaces[i], nil
		}
	}
	return nil, fmt.Errorf("no interface %d", n)
}

// StringBytes returns string descriptor index; index 0 is the language table.
func (d *Descriptor) StringBytes(index uint8) ([]byte, bool) {
	if index == 0 {
		return []byte{0x04, StringDescType, 0x09, 0x04}, true
	}
	s, ok := d.Strings[index]
	if !ok {
		return nil, false
	}
	return EncodeStringDescriptor(s), true
}

// EncodeStringDescriptor converts a UTF-8 string to a USB string descriptor:
// bLength, bDescriptorType (0x03), then UTF-16LE code units.
func EncodeStringDescriptor(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 2+len(runes)*2)
	buf[0] = uint8(len(buf))
	buf[1] = StringDescType
	for i, r := range runes {
		buf[2+i*2] = uint8(r)
		buf[2+i*2+1] = uint8(r >> 8)
	}
	return buf
}
