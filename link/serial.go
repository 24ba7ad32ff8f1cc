package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialConfig selects the UART joining the halves.
type SerialConfig struct {
	Port        string        `help:"Serial device joining the two halves (empty disables the link)" env:"YUKI_LINK_PORT"`
	Baud        int           `help:"Link baud rate" default:"38400" env:"YUKI_LINK_BAUD"`
	ReadTimeout time.Duration `help:"Link read timeout, bounds shutdown latency of the receive task" default:"100ms"`
}

// OpenSerial opens the link UART in 8N1 mode. Reads time out after
// cfg.ReadTimeout so Receiver.Run can observe cancellation.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = 38400
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open link port %s: %w", cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set link read timeout: %w", err)
		}
	}
	return port, nil
}

// SerialPorts lists the serial devices present on the system.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
