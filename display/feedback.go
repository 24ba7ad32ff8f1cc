// Package display renders the active layer and link direction on the
// half's OLED.
package display

import (
	"fmt"
	"image/color"
	"strconv"

	"github.com/crolbar/yuki/link"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

var (
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black = color.RGBA{A: 0xff}
)

// Text baselines in logical coordinates of the rotated 32x128 panel.
const (
	textX      = 2
	layerLineY = 64
	arrowLineY = 108
)

// State is the pair last drawn.
type State struct {
	Layer     int
	Direction link.Direction
}

// Feedback redraws the display when the layer or direction changes.
type Feedback struct {
	d     drivers.Displayer
	font  tinyfont.Fonter
	last  State
	drawn bool
}

func New(d drivers.Displayer) *Feedback {
	return &Feedback{d: d, font: &proggy.TinySZ8pt7b}
}

// Last returns the last successfully drawn state.
func (f *Feedback) Last() (State, bool) { return f.last, f.drawn }

// Update draws layer and dir unless they were the last pair drawn. A flush
// error leaves the pair unrecorded so the next call retries.
func (f *Feedback) Update(layer int, dir link.Direction) error {
	st := State{Layer: layer, Direction: dir}
	if f.drawn && st == f.last {
		return nil
	}

	f.clear()
	f.drawLogo()
	tinyfont.WriteLine(f.d, f.font, textX, layerLineY, "L "+strconv.Itoa(layer), white)
	tinyfont.WriteLine(f.d, f.font, textX, arrowLineY, arrow(dir), white)

	if err := f.d.Display(); err != nil {
		f.drawn = false
		return fmt.Errorf("display flush: %w", err)
	}
	f.last, f.drawn = st, true
	return nil
}

func arrow(dir link.Direction) string {
	if dir == link.ThisHalfIsHost {
		return "-->"
	}
	return "<--"
}

func (f *Feedback) clear() {
	if c, ok := f.d.(interface{ ClearBuffer() }); ok {
		c.ClearBuffer()
		return
	}
	w, h := f.d.Size()
	for y := int16(0); y < h; y++ {
		for x := int16(0); x < w; x++ {
			f.d.SetPixel(x, y, black)
		}
	}
}

func (f *Feedback) drawLogo() {
	for y, row := range logo {
		for x := 0; x < logoWidth; x++ {
			if row&(1<<(logoWidth-1-x)) != 0 {
				f.d.SetPixel(int16(x), int16(y), white)
			}
		}
	}
}

const logoWidth = 32

// logo is a 32x32 1bpp image, most significant bit leftmost.
var logo = [32]uint32{
	0x00000000,
	0x00000000,
	0x03C003C0,
	0x07E007E0,
	0x0FF00FF0,
	0x0FF81FF0,
	0x07FC3FE0,
	0x03FE7FC0,
	0x01FFFF80,
	0x00FFFF00,
	0x007FFE00,
	0x003FFC00,
	0x001FF800,
	0x000FF000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x0007E000,
	0x000FF000,
	0x001FF800,
	0x003FFC00,
	0x00000000,
	0x3FFFFFFC,
	0x3FFFFFFC,
	0x00000000,
	0x00000000,
}
