package hid_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/crolbar/yuki/arbiter"
	"github.com/crolbar/yuki/hid"
	"github.com/crolbar/yuki/internal/ceiling"
	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/usb"
	"github.com/crolbar/yuki/usbip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice() (*hid.Device, *ceiling.Resource[link.Direction]) {
	dir := ceiling.New(link.ThisHalfIsHost, ceiling.Tick, ceiling.USB)
	active := ceiling.New(true, ceiling.Tick, ceiling.USB)
	d := hid.New(hid.Config{VendorID: 1, ProductID: 2}, dir, active, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, dir
}

func TestDeviceImplementsInterfaces(t *testing.T) {
	d, _ := newDevice()
	var _ arbiter.Transport = d
	var _ arbiter.Discarder = d
	var _ usb.Device = d
	var _ usb.ControlHandler = d
	var _ usb.Configurable = d
	var _ usb.Detachable = d
}

func TestWriteBeforeConfigured(t *testing.T) {
	d, _ := newDevice()
	n, err := d.WriteKeyboard(make([]byte, keyboard.ReportSize))
	assert.ErrorIs(t, err, arbiter.ErrNotConfigured)
	assert.Zero(t, n)
}

func TestSingleSlotBusyUntilTaken(t *testing.T) {
	d, _ := newDevice()
	d.SetConfiguration(1)

	first := []byte{0, 0, 0x04, 0, 0, 0, 0, 0}
	_, err := d.WriteKeyboard(first)
	require.NoError(t, err)

	_, err = d.WriteKeyboard([]byte{0, 0, 0x05, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, arbiter.ErrBusy)

	assert.Equal(t, first, d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirIn, nil))
	// idle repeat of the last report
	assert.Equal(t, first, d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirIn, nil))

	_, err = d.WriteKeyboard(make([]byte, keyboard.ReportSize))
	assert.NoError(t, err)
}

func TestOtherHalfHostOnlyDrainsPending(t *testing.T) {
	d, dir := newDevice()
	d.SetConfiguration(1)
	_, err := d.WriteKeyboard([]byte{0, 0, 0x04, 0, 0, 0, 0, 0})
	require.NoError(t, err)

	dir.Store(ceiling.Tick, link.OtherHalfIsHost)
	assert.NotNil(t, d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirIn, nil))
	assert.Nil(t, d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirIn, nil))
}

func TestDiscardDropsStaleReport(t *testing.T) {
	d, dir := newDevice()
	d.SetConfiguration(1)
	_, err := d.WriteKeyboard([]byte{0, 0, 0x04, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	_, err = d.WriteMouse([]byte{1, 5, 0, 0, 0})
	require.NoError(t, err)

	dir.Store(ceiling.Tick, link.OtherHalfIsHost)
	d.Discard()
	release := make([]byte, keyboard.ReportSize)
	_, err = d.WriteKeyboard(release)
	require.NoError(t, err, "slot is free after discard")

	assert.Equal(t, release, d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirIn, nil), "release replaces the queued keys")
	assert.Nil(t, d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirIn, nil))
	assert.Nil(t, d.HandleTransfer(hid.MouseEndpoint, usbip.DirIn, nil), "queued motion never reaches the host")
}

func TestLEDsFromOutEndpoint(t *testing.T) {
	d, _ := newDevice()
	var got []keyboard.LEDState
	d.SetLEDCallback(func(s keyboard.LEDState) { got = append(got, s) })

	d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirOut, []byte{keyboard.LEDNumLock | keyboard.LEDScrollLock})
	d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirOut, []byte{keyboard.LEDNumLock | keyboard.LEDScrollLock})
	d.HandleTransfer(hid.KeyboardEndpoint, usbip.DirOut, nil)

	want := keyboard.LEDState{NumLock: true, ScrollLock: true}
	assert.Equal(t, want, d.LEDs())
	assert.Equal(t, []keyboard.LEDState{want}, got, "callback fires on change only")
}

func TestClassRequests(t *testing.T) {
	d, _ := newDevice()
	iface := func(req uint8, value uint16, n uint8) usb.Setup {
		return usb.Setup{RequestType: usb.ReqTypeClass | usb.ReqRecipientInterface, Request: req, Value: value, Index: uint16(n)}
	}

	_, ok := d.HandleControl(iface(usb.HIDReqSetIdle, 0x0400, hid.KeyboardInterface), nil)
	require.True(t, ok)
	idle, ok := d.HandleControl(iface(usb.HIDReqGetIdle, 0, hid.KeyboardInterface), nil)
	require.True(t, ok)
	assert.Equal(t, []byte{4}, idle)

	proto, ok := d.HandleControl(iface(usb.HIDReqGetProtocol, 0, hid.MouseInterface), nil)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, proto)

	_, ok = d.HandleControl(iface(usb.HIDReqGetIdle, 0, 5), nil)
	assert.False(t, ok, "unknown interface")
}

func TestDetachedClearsState(t *testing.T) {
	d, _ := newDevice()
	d.SetConfiguration(1)
	_, err := d.WriteMouse([]byte{1, 5, 0, 0, 0})
	require.NoError(t, err)

	d.Detached()
	assert.False(t, d.Configured())
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, d.HandleTransfer(hid.MouseEndpoint, usbip.DirIn, nil))
}

func TestDescriptorIdentity(t *testing.T) {
	d, _ := newDevice()
	desc := d.GetDescriptor()
	assert.Equal(t, uint16(1), desc.Device.IDVendor)
	assert.Equal(t, uint16(2), desc.Device.IDProduct)

	kb, err := desc.Interface(hid.KeyboardInterface)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x81), kb.Endpoints[0].BEndpointAddress)
	assert.Equal(t, keyboard.ReportDescriptor, kb.HIDReport)
}
