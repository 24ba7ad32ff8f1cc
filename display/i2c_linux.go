//go:build linux

package display

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const i2cSlave = 0x0703

// I2CDev is a Linux i2c-dev bus.
type I2CDev struct {
	mu   sync.Mutex
	fd   int
	addr uint16
	set  bool
}

// OpenI2C opens /dev/i2c-<bus>.
func OpenI2C(bus int) (*I2CDev, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &I2CDev{fd: fd}, nil
}

// Tx writes w then reads into r, addressing the 7-bit device addr.
func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.set || d.addr != addr {
		if err := unix.IoctlSetInt(d.fd, i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c select 0x%02x: %w", addr, err)
		}
		d.addr, d.set = addr, true
	}
	if len(w) > 0 {
		if _, err := unix.Write(d.fd, w); err != nil {
			return fmt.Errorf("i2c write 0x%02x: %w", addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := unix.Read(d.fd, r); err != nil {
			return fmt.Errorf("i2c read 0x%02x: %w", addr, err)
		}
	}
	return nil
}

func (d *I2CDev) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return d.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (d *I2CDev) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return d.Tx(uint16(addr), []byte{reg}, buf)
}

func (d *I2CDev) Close() error {
	return unix.Close(d.fd)
}
