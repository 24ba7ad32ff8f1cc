// Package testing holds a minimal USB/IP client for exercising the server
// from tests.
package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crolbar/yuki/usb"
	"github.com/crolbar/yuki/usbip"
)

type TestUsbIpClient struct {
	address string
	seq     uint32
	timeout time.Duration
}

func NewUsbIpClient(t *testing.T, addr string) *TestUsbIpClient {
	t.Helper()
	return &TestUsbIpClient{address: addr, timeout: 750 * time.Millisecond}
}

func (c *TestUsbIpClient) nextSeq() uint32 {
	return atomic.AddUint32(&c.seq, 1)
}

// BusID returns the trimmed busid of an exported device.
func BusID(d *usbip.ExportedDevice) string {
	id := d.USBBusId[:]
	if end := bytes.IndexByte(id, 0); end >= 0 {
		id = id[:end]
	}
	return string(id)
}

func read(conn net.Conn, v any) error {
	return binary.Read(conn, binary.BigEndian, v)
}

// ListDevices performs OP_REQ_DEVLIST.
func (c *TestUsbIpClient) ListDevices() ([]*usbip.ExportedDevice, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := usbip.Write(conn, usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}); err != nil {
		return nil, err
	}
	var reply struct {
		usbip.MgmtHeader
		NDevices uint32
	}
	if err := read(conn, &reply); err != nil {
		return nil, err
	}
	if reply.Command != usbip.OpRepDevlist {
		return nil, fmt.Errorf("unexpected reply command %x", reply.Command)
	}

	devices := make([]*usbip.ExportedDevice, 0, reply.NDevices)
	for range reply.NDevices {
		d, err := usbip.ReadExportedDevice(conn, true)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Attach performs OP_REQ_IMPORT and returns the connection carrying the
// URB stream.
func (c *TestUsbIpClient) Attach(busID string) (net.Conn, *usbip.ExportedDevice, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	var req struct {
		usbip.MgmtHeader
		BusID [usbip.BusIDLen]byte
	}
	req.Version, req.Command = usbip.Version, usbip.OpReqImport
	copy(req.BusID[:], busID)
	if err := usbip.Write(conn, &req); err != nil {
		conn.Close()
		return nil, nil, err
	}

	var hdr usbip.MgmtHeader
	if err := read(conn, &hdr); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if hdr.Command != usbip.OpRepImport || hdr.Status != 0 {
		conn.Close()
		return nil, nil, fmt.Errorf("import refused: command %x status %d", hdr.Command, hdr.Status)
	}
	d, err := usbip.ReadExportedDevice(conn, false)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, d, nil
}

// Submit sends one CMD_SUBMIT and returns the reply payload and status.
func (c *TestUsbIpClient) Submit(conn net.Conn, dir, ep uint32, out []byte, setup [8]byte, inLen uint32) ([]byte, int32, error) {
	bufLen := inLen
	if dir == usbip.DirOut {
		bufLen = uint32(len(out))
	}
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: c.nextSeq(), Dir: dir, Ep: ep},
		TransferBufferLen: bufLen,
		Setup:             setup,
	}

	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	defer conn.SetDeadline(time.Time{})

	var buf bytes.Buffer
	_ = usbip.Write(&buf, &cmd)
	if dir == usbip.DirOut {
		buf.Write(out)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, 0, err
	}

	var ret usbip.RetSubmit
	if err := read(conn, &ret); err != nil {
		return nil, 0, err
	}
	if ret.Basic.Command != usbip.RetSubmitCode || ret.Basic.Seqnum != cmd.Basic.Seqnum {
		return nil, 0, fmt.Errorf("unexpected reply %x seq %d", ret.Basic.Command, ret.Basic.Seqnum)
	}
	if dir == usbip.DirOut || ret.ActualLength == 0 {
		return nil, ret.Status, nil
	}
	data := make([]byte, ret.ActualLength)
	if err := usbip.ReadExactly(conn, data); err != nil {
		return nil, 0, err
	}
	return data, ret.Status, nil
}

// Control runs a control transfer on EP0.
func (c *TestUsbIpClient) Control(conn net.Conn, setup usb.Setup, out []byte) ([]byte, int32, error) {
	dir := uint32(usbip.DirOut)
	if setup.In() {
		dir = usbip.DirIn
	}
	return c.Submit(conn, dir, 0, out, setup.Bytes(), uint32(setup.Length))
}

// ReadInputReport polls interrupt IN endpoint ep once.
func (c *TestUsbIpClient) ReadInputReport(conn net.Conn, ep uint32) ([]byte, error) {
	data, status, err := c.Submit(conn, usbip.DirIn, ep, nil, [8]byte{}, 64)
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, fmt.Errorf("ret status %d", status)
	}
	return data, nil
}

// PollInputReport polls ep until it returns want or timeout passes; the
// last report seen is returned either way.
func (c *TestUsbIpClient) PollInputReport(conn net.Conn, ep uint32, want []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		got, err := c.ReadInputReport(conn, ep)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(got, want) || time.Now().After(deadline) {
			return got, nil
		}
		time.Sleep(time.Millisecond)
	}
}
