package usb

import "time"

// ServerConfig configures the USB/IP export of the host half.
type ServerConfig struct {
	Addr              string        `help:"USB/IP server listen address" default:":3241" env:"YUKI_USB_ADDR"`
	BusID             uint32        `help:"USB/IP bus number of the exported keyboard" default:"1" env:"YUKI_USB_BUS"`
	ConnectionTimeout time.Duration `help:"Deadline for the management handshake" default:"5s" env:"YUKI_USB_CONN_TIMEOUT"`
}
