// Package usbip holds the USB/IP wire structures. All integers are
// big-endian on the wire; every struct here has a fixed size so it can be
// moved with a single binary.Read/Write.
package usbip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Wire constants
const (
	Version = 0x0111

	// Management commands
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	// URB transfer commands
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	// Directions used in HeaderBasic.Dir
	DirOut = 0x00000000
	DirIn  = 0x00000001

	// URBHeaderLen is the size of every URB command and reply header.
	URBHeaderLen = 0x30
	// BusIDLen is the size of the busid field of OP_REQ_IMPORT.
	BusIDLen = 32
)

// MgmtHeader is the 8-byte header for management ops (devlist/import).
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

// ExportMeta carries USB/IP bus identity for an emulated device.
type ExportMeta struct {
	Path     [256]byte
	USBBusId [32]byte
	BusId    uint32
	DevId    uint32
}

// DeviceInfo is the fixed part of a device entry in devlist/import replies.
type DeviceInfo struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8
}

// InterfaceDesc is one class/subclass/protocol triplet of a devlist entry.
type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
	_        uint8
}

// ExportedDevice describes one exported device.
type ExportedDevice struct {
	DeviceInfo
	Interfaces []InterfaceDesc
}

// WriteDevlist writes the device entry for OP_REP_DEVLIST, interface
// triplets included.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	if err := d.WriteImport(w); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, d.Interfaces)
}

// WriteImport writes the device entry for OP_REP_IMPORT (ends at bNumInterfaces).
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, &d.DeviceInfo)
}

// ReadExportedDevice reads a device entry; interfaces are read for devlist
// replies only.
func ReadExportedDevice(r io.Reader, withInterfaces bool) (*ExportedDevice, error) {
	d := &ExportedDevice{}
	if err := binary.Read(r, binary.BigEndian, &d.DeviceInfo); err != nil {
		return nil, err
	}
	if withInterfaces {
		d.Interfaces = make([]InterfaceDesc, d.BNumInterfaces)
		if err := binary.Read(r, binary.BigEndian, d.Interfaces); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// HeaderBasic is common to all URB cmds and replies.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

// CmdSubmit header; the OUT payload follows it.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

// RetSubmit header; the IN payload follows it.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Padding         [8]byte
}

type CmdUnlink struct {
	Basic        HeaderBasic
	UnlinkSeqnum uint32
	Padding      [24]byte
}

type RetUnlink struct {
	Basic   HeaderBasic
	Status  int32
	Padding [24]byte
}

// Write encodes any of the fixed-size wire structs.
func Write(w io.Writer, v any) error {
	return binary.Write(w, binary.BigEndian, v)
}

// ReadCmd reads one URB command header and returns *CmdSubmit or *CmdUnlink.
// The OUT payload of a submit is left on r.
func ReadCmd(r io.Reader) (any, error) {
	var raw [URBHeaderLen]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, err
	}
	var cmd any
	switch code := binary.BigEndian.Uint32(raw[0:4]); code {
	case CmdSubmitCode:
		cmd = &CmdSubmit{}
	case CmdUnlinkCode:
		cmd = &CmdUnlink{}
	default:
		return nil, fmt.Errorf("unknown urb command 0x%08x", code)
	}
	if err := binary.Read(bytes.NewReader(raw[:]), binary.BigEndian, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// ReadExactly fills buf from r.
func ReadExactly(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
