// Package usb serves emulated devices of a virtual bus over USB/IP.
package usb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/crolbar/yuki/internal/log"
	"github.com/crolbar/yuki/usb"
	"github.com/crolbar/yuki/usbip"
	"github.com/crolbar/yuki/virtualbus"
)

const (
	statusOK    = 0
	statusPipe  = -32  // -EPIPE, stalls the control request
	statusReset = -104 // -ECONNRESET

	configValueDefault = 1
)

type Server struct {
	config    ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	bus       *virtualbus.VirtualBus
	ready     chan struct{}
	readyOnce sync.Once

	mu sync.Mutex
	ln net.Listener
}

func New(config ServerConfig, bus *virtualbus.VirtualBus, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil, "")
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 5 * time.Second
	}
	return &Server{
		config:    config,
		logger:    logger,
		rawLogger: rawLogger,
		bus:       bus,
		ready:     make(chan struct{}),
	}
}

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USB/IP server listening", "addr", ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("USB/IP server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		go func() {
			if err := s.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Info("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the server by closing its listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn = &logConn{Conn: conn, raw: s.rawLogger}
	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	var hdr usbip.MgmtHeader
	if err := binary.Read(conn, binary.BigEndian, &hdr); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if hdr.Version != usbip.Version {
		return fmt.Errorf("protocol violation: version 0x%04x", hdr.Version)
	}

	switch hdr.Command {
	case usbip.OpReqDevlist:
		s.logger.Debug("OP_REQ_DEVLIST")
		return s.handleDevList(conn)
	case usbip.OpReqImport:
		s.logger.Debug("OP_REQ_IMPORT")
		dev, ctx, err := s.handleImport(conn)
		if err != nil {
			return fmt.Errorf("handle import: %w", err)
		}
		return s.handleUrbStream(ctx, conn, dev)
	}
	return fmt.Errorf("protocol violation: unexpected op 0x%04x before OP_REQ_IMPORT", hdr.Command)
}

func exported(m virtualbus.DeviceMeta) usbip.ExportedDevice {
	desc := m.Dev.GetDescriptor()
	exp := usbip.ExportedDevice{DeviceInfo: usbip.DeviceInfo{
		ExportMeta:          m.Meta,
		Speed:               desc.Device.Speed,
		IDVendor:            desc.Device.IDVendor,
		IDProduct:           desc.Device.IDProduct,
		BcdDevice:           desc.Device.BcdDevice,
		BDeviceClass:        desc.Device.BDeviceClass,
		BDeviceSubClass:     desc.Device.BDeviceSubClass,
		BDeviceProtocol:     desc.Device.BDeviceProtocol,
		BConfigurationValue: configValueDefault,
		BNumConfigurations:  desc.Device.BNumConfigurations,
		BNumInterfaces:      uint8(len(desc.Interfaces)),
	}}
	for _, iface := range desc.Interfaces {
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    iface.Descriptor.BInterfaceClass,
			SubClass: iface.Descriptor.BInterfaceSubClass,
			Protocol: iface.Descriptor.BInterfaceProtocol,
		})
	}
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	devices := s.bus.Devices()
	var buf bytes.Buffer
	_ = usbip.Write(&buf, usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist})
	_ = usbip.Write(&buf, uint32(len(devices)))
	for _, m := range devices {
		exp := exported(m)
		_ = exp.WriteDevlist(&buf)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (usb.Device, context.Context, error) {
	var rest [usbip.BusIDLen]byte
	if err := usbip.ReadExactly(conn, rest[:]); err != nil {
		return nil, nil, fmt.Errorf("read import busid: %w", err)
	}
	reqBus := string(rest[:])
	if end := strings.IndexByte(reqBus, 0); end >= 0 {
		reqBus = reqBus[:end]
	}
	s.logger.Info("Import request", "busid", reqBus)

	m, ctx, ok := s.bus.Lookup(reqBus)
	if !ok {
		_ = usbip.Write(conn, usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: 1})
		return nil, nil, fmt.Errorf("no device matches busid %s", reqBus)
	}

	var buf bytes.Buffer
	_ = usbip.Write(&buf, usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport})
	exp := exported(m)
	_ = exp.WriteImport(&buf)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, nil, fmt.Errorf("write import reply: %w", err)
	}
	return m.Dev, ctx, nil
}

type logConn struct {
	net.Conn
	raw log.RawLogger
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 {
		lc.raw.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 {
		lc.raw.Log(false, p[:n])
	}
	return n, err
}

// session is the per-import EP0 state.
type session struct {
	dev    usb.Device
	config uint8
}

func (s *Server) handleUrbStream(ctx context.Context, conn net.Conn, dev usb.Device) error {
	_ = conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("device removed, closing URB stream")
		_ = conn.Close()
	})
	defer stop()
	if d, ok := dev.(usb.Detachable); ok {
		defer d.Detached()
	}

	sess := &session{dev: dev}
	for {
		cmd, err := usbip.ReadCmd(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read URB header: %w", err)
		}

		switch c := cmd.(type) {
		case *usbip.CmdUnlink:
			s.logger.Debug("USBIP_CMD_UNLINK", "seq", c.Basic.Seqnum, "unlink", c.UnlinkSeqnum)
			ret := usbip.RetUnlink{Basic: usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: c.Basic.Seqnum}, Status: statusReset}
			if err := usbip.Write(conn, &ret); err != nil {
				return fmt.Errorf("write RET_UNLINK: %w", err)
			}

		case *usbip.CmdSubmit:
			var outPayload []byte
			if c.Basic.Dir == usbip.DirOut && c.TransferBufferLen > 0 {
				outPayload = make([]byte, c.TransferBufferLen)
				if err := usbip.ReadExactly(conn, outPayload); err != nil {
					return fmt.Errorf("read OUT payload: %w", err)
				}
			}

			var data []byte
			status := int32(statusOK)
			if c.Basic.Ep == 0 {
				data, status = s.processControl(sess, c.Setup[:], outPayload)
			} else {
				data = dev.HandleTransfer(c.Basic.Ep, c.Basic.Dir, outPayload)
			}

			ret := usbip.RetSubmit{
				Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: c.Basic.Seqnum},
				Status:       status,
				ActualLength: uint32(len(data)),
			}
			if c.Basic.Dir == usbip.DirOut {
				ret.ActualLength = uint32(len(outPayload))
				data = nil
			}
			var out bytes.Buffer
			_ = usbip.Write(&out, &ret)
			out.Write(data)
			if _, err := conn.Write(out.Bytes()); err != nil {
				return fmt.Errorf("write RET_SUBMIT: %w", err)
			}
		}
	}
}

// processControl answers an EP0 request. Class requests go to the device;
// standard requests cover enumeration.
func (s *Server) processControl(sess *session, raw []byte, out []byte) ([]byte, int32) {
	setup, err := usb.ParseSetup(raw)
	if err != nil {
		return nil, statusPipe
	}
	dev := sess.dev

	if setup.Type() == usb.ReqTypeClass {
		if h, ok := dev.(usb.ControlHandler); ok {
			if in, handled := h.HandleControl(setup, out); handled {
				return setup.Clip(in), statusOK
			}
		}
		s.logger.Debug("unhandled class request", "request", setup.Request, "index", setup.Index)
		return nil, statusPipe
	}
	if setup.Type() != usb.ReqTypeStandard {
		return nil, statusPipe
	}

	desc := dev.GetDescriptor()
	switch setup.Request {
	case usb.ReqSetAddress, usb.ReqSetInterface, usb.ReqSetFeature, usb.ReqClearFeature:
		return nil, statusOK
	case usb.ReqSetConfiguration:
		sess.config = uint8(setup.Value)
		if c, ok := dev.(usb.Configurable); ok {
			c.SetConfiguration(sess.config)
		}
		s.logger.Info("USB configuration set", "value", sess.config)
		return nil, statusOK
	case usb.ReqGetConfiguration:
		return []byte{sess.config}, statusOK
	case usb.ReqGetInterface:
		return []byte{0}, statusOK
	case usb.ReqGetStatus:
		return setup.Clip([]byte{0, 0}), statusOK
	case usb.ReqGetDescriptor:
		if data := getDescriptor(desc, setup); data != nil {
			return setup.Clip(data), statusOK
		}
	}
	return nil, statusPipe
}

func getDescriptor(desc *usb.Descriptor, setup usb.Setup) []byte {
	dtype := uint8(setup.Value >> 8)
	dindex := uint8(setup.Value)

	if setup.Recipient() == usb.ReqRecipientInterface {
		iface, err := desc.Interface(setup.Interface())
		if err != nil || iface.HIDReport == nil {
			return nil
		}
		switch dtype {
		case usb.HIDDescType:
			return usb.HIDClassBytes(len(iface.HIDReport))
		case usb.ReportDescType:
			return iface.HIDReport
		}
		return nil
	}

	switch dtype {
	case usb.DeviceDescType:
		return desc.DeviceBytes()
	case usb.ConfigDescType:
		return desc.ConfigBytes()
	case usb.StringDescType:
		if data, ok := desc.StringBytes(dindex); ok {
			return data
		}
	}
	return nil
}

// isClientDisconnect tests whether an error represents a normal client
// disconnect (EOF, ECONNRESET, broken pipe).
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed")
}
