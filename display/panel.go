package display

import (
	"fmt"
	"image/color"

	"tinygo.org/x/drivers"
)

// Panel geometry of the SSD1306 module.
const (
	PanelWidth  = 128
	PanelHeight = 32
	DefaultAddr = 0x3C

	ctrlCommand = 0x00
	ctrlData    = 0x40
	dataChunk   = 16
)

// Panel is a 1bpp SSD1306 framebuffer flushed over I2C. Drawing happens in
// logical coordinates; the rotation maps them onto the physical panel.
type Panel struct {
	bus  drivers.I2C
	addr uint16
	rot  drivers.Rotation
	buf  [PanelWidth * PanelHeight / 8]byte
}

// NewPanel returns a panel at addr on bus (0 selects DefaultAddr).
func NewPanel(bus drivers.I2C, addr uint16, rot drivers.Rotation) *Panel {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &Panel{bus: bus, addr: addr, rot: rot}
}

// Init sends the power-up sequence for a 128x32 module.
func (p *Panel) Init() error {
	return p.command(
		0xAE,       // display off
		0xD5, 0x80, // clock divide
		0xA8, 0x1F, // multiplex ratio, PanelHeight-1
		0xD3, 0x00, // display offset
		0x40,       // start line 0
		0x8D, 0x14, // charge pump on
		0x20, 0x00, // horizontal addressing
		0xA1,       // segment remap
		0xC8,       // COM scan descending
		0xDA, 0x02, // COM pins for 128x32
		0x81, 0x8F, // contrast
		0xD9, 0xF1, // precharge
		0xDB, 0x40, // VCOM detect
		0xA4,       // resume from RAM
		0xA6,       // normal, not inverted
		0xAF,       // display on
	)
}

func (p *Panel) command(cmds ...byte) error {
	for _, c := range cmds {
		if err := p.bus.Tx(p.addr, []byte{ctrlCommand, c}, nil); err != nil {
			return fmt.Errorf("ssd1306 command 0x%02x: %w", c, err)
		}
	}
	return nil
}

// Size returns the logical size after rotation.
func (p *Panel) Size() (x, y int16) {
	if p.rot == drivers.Rotation90 || p.rot == drivers.Rotation270 {
		return PanelHeight, PanelWidth
	}
	return PanelWidth, PanelHeight
}

// Rotation returns the current rotation.
func (p *Panel) Rotation() drivers.Rotation { return p.rot }

// SetRotation changes how logical coordinates map to the panel. The buffer
// is kept as is.
func (p *Panel) SetRotation(rot drivers.Rotation) error {
	p.rot = rot
	return nil
}

func (p *Panel) physical(x, y int16) (int16, int16) {
	switch p.rot {
	case drivers.Rotation90:
		return y, PanelHeight - 1 - x
	case drivers.Rotation180:
		return PanelWidth - 1 - x, PanelHeight - 1 - y
	case drivers.Rotation270:
		return PanelWidth - 1 - y, x
	}
	return x, y
}

// SetPixel lights the pixel for any non-black color. Out of range
// coordinates are ignored.
func (p *Panel) SetPixel(x, y int16, c color.RGBA) {
	w, h := p.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	px, py := p.physical(x, y)
	i := int(px) + int(py/8)*PanelWidth
	bit := byte(1) << (py % 8)
	if c.R|c.G|c.B != 0 {
		p.buf[i] |= bit
	} else {
		p.buf[i] &^= bit
	}
}

// Pixel reports whether the logical pixel is lit.
func (p *Panel) Pixel(x, y int16) bool {
	w, h := p.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return false
	}
	px, py := p.physical(x, y)
	return p.buf[int(px)+int(py/8)*PanelWidth]&(1<<(py%8)) != 0
}

// ClearBuffer blanks the framebuffer without flushing.
func (p *Panel) ClearBuffer() {
	p.buf = [len(p.buf)]byte{}
}

// Display flushes the framebuffer to the panel.
func (p *Panel) Display() error {
	if err := p.command(0x21, 0, PanelWidth-1, 0x22, 0, PanelHeight/8-1); err != nil {
		return err
	}
	chunk := make([]byte, 1+dataChunk)
	chunk[0] = ctrlData
	for off := 0; off < len(p.buf); off += dataChunk {
		n := copy(chunk[1:], p.buf[off:])
		if err := p.bus.Tx(p.addr, chunk[:1+n], nil); err != nil {
			return fmt.Errorf("ssd1306 data at %d: %w", off, err)
		}
	}
	return nil
}
