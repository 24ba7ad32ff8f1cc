//go:build !linux

package display

import "errors"

// I2CDev is only available on Linux.
type I2CDev struct{}

func OpenI2C(bus int) (*I2CDev, error) {
	return nil, errors.New("i2c-dev is only supported on linux")
}

func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	return errors.ErrUnsupported
}

func (d *I2CDev) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return errors.ErrUnsupported
}

func (d *I2CDev) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return errors.ErrUnsupported
}

func (d *I2CDev) Close() error { return nil }
