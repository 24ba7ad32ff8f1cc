package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crolbar/yuki/arbiter"
	"github.com/crolbar/yuki/display"
	"github.com/crolbar/yuki/half"
	"github.com/crolbar/yuki/hid"
	"github.com/crolbar/yuki/internal/ceiling"
	"github.com/crolbar/yuki/internal/log"
	usbserver "github.com/crolbar/yuki/internal/server/usb"
	"github.com/crolbar/yuki/internal/termmatrix"
	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/layout"
	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/matrix"
	"github.com/crolbar/yuki/mouse"
	"github.com/crolbar/yuki/virtualbus"
	"tinygo.org/x/drivers"
)

// HalfConfig selects which half this process is.
type HalfConfig struct {
	Side      string         `help:"Which half this is; the left half is canonical" enum:"left,right" default:"left" env:"YUKI_SIDE"`
	Direction link.Direction `help:"Initial link direction (host or remote)" default:"host" env:"YUKI_DIRECTION"`
	Period    time.Duration  `help:"Control tick period" default:"1ms"`
}

// MatrixConfig describes the local matrix and its terminal stand-in.
type MatrixConfig struct {
	Size  matrix.Size `embed:""`
	Depth uint8       `help:"Debounce depth in samples" default:"5"`
	Keys  []string    `help:"Terminal keys of each matrix row, one string per row" default:"123456,qwerty,asdfgh,zxcvbn"`
	Hold  uint16      `help:"Samples a terminal key stays pressed" default:"600"`
}

// DisplayConfig selects the OLED. A negative bus disables it.
type DisplayConfig struct {
	Bus      int    `help:"I2C bus number of the OLED (negative disables)" default:"-1" env:"YUKI_DISPLAY_BUS"`
	Addr     uint16 `help:"I2C address of the OLED" default:"60"`
	Rotation int    `help:"Panel rotation in degrees" enum:"0,90,180,270" default:"90"`
}

// Run runs one keyboard half.
type Run struct {
	Half       HalfConfig             `embed:"" prefix:"half."`
	Matrix     MatrixConfig           `embed:"" prefix:"matrix."`
	Keymap     string                 `help:"Keymap file (yaml or toml); the built-in layout when empty" env:"YUKI_KEYMAP"`
	Link       link.SerialConfig      `embed:"" prefix:"link."`
	Mouse      mouse.Config           `embed:"" prefix:"mouse."`
	Usb        usbserver.ServerConfig `embed:"" prefix:"usb."`
	Device     hid.Config             `embed:"" prefix:"device."`
	Display    DisplayConfig          `embed:"" prefix:"display."`
	RetryDelay time.Duration          `help:"Pause between writes to a busy endpoint" default:"100us"`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, raw log.RawOutput) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restore, err := termmatrix.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return &half.InitError{Component: "terminal", Err: err}
	}
	defer func() { _ = restore() }()

	sampler, err := termmatrix.New(os.Stdin, r.Matrix.Keys, r.Matrix.Hold)
	if err != nil {
		return &half.InitError{Component: "matrix", Err: err}
	}
	go func() {
		if err := sampler.Run(ctx); err != nil {
			logger.Warn("terminal input stopped", "error", err)
		}
	}()
	go func() {
		select {
		case <-sampler.Interrupted():
			stop()
		case <-ctx.Done():
		}
	}()

	return r.StartHalf(ctx, sampler, logger, raw)
}

// StartHalf brings up every peripheral around sampler and runs the half
// until ctx is done.
func (r *Run) StartHalf(ctx context.Context, sampler matrix.Sampler, logger *slog.Logger, raw log.RawOutput) error {
	size := r.Matrix.Size
	if err := size.Validate(); err != nil {
		return &half.InitError{Component: "matrix", Err: err}
	}

	engine, err := r.engine(logger)
	if err != nil {
		return &half.InitError{Component: "keymap", Err: err}
	}

	dir := ceiling.New(r.Half.Direction, ceiling.Tick, ceiling.USB)
	mouseActive := ceiling.New(true, ceiling.Tick, ceiling.USB)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	opts := half.Options{
		Sampler:     sampler,
		Scanner:     matrix.ScannerConfig{Size: size, Depth: r.Matrix.Depth, Chord: matrix.DefaultChord(size)},
		Bootloader:  half.Bootloader{Logger: logger},
		Canonical:   r.Half.Side == "left",
		Engine:      engine,
		Mouse:       r.Mouse,
		RetryDelay:  r.RetryDelay,
		Direction:   dir,
		MouseActive: mouseActive,
		Logger:      logger,
	}

	if r.Link.Port != "" {
		port, err := link.OpenSerial(r.Link)
		if err != nil {
			return &half.InitError{Component: "link", Err: err}
		}
		closers = append(closers, port)
		rx := link.NewReceiver(port, size, logger.With("component", "link"), raw.Logger("link"))
		opts.Link = link.NewTransmitter(port, size, raw.Logger("link"))
		opts.Remote = rx.Events()
		go func() {
			if err := rx.Run(ctx); err != nil {
				logger.Error("link receiver stopped", "error", err)
			}
			logger.Debug("link receiver done", "stats", rx.Stats())
		}()
		logger.Info("link open", "port", r.Link.Port, "baud", r.Link.Baud)
	} else {
		logger.Warn("no link port configured, running standalone")
	}

	dev := hid.New(r.Device, dir, mouseActive, logger.With("component", "hid"))
	dev.SetLEDCallback(func(st keyboard.LEDState) {
		logger.Info("host LEDs", "num", st.NumLock, "caps", st.CapsLock, "scroll", st.ScrollLock)
	})
	bus := virtualbus.New(r.Usb.BusID)
	closers = append(closers, bus)
	meta, err := bus.Add(dev)
	if err != nil {
		return &half.InitError{Component: "usb", Err: err}
	}
	srv := usbserver.New(r.Usb, bus, logger.With("component", "usbip"), raw.Logger("usbip"))
	usbErr := make(chan error, 1)
	go func() { usbErr <- srv.ListenAndServe() }()
	select {
	case err := <-usbErr:
		return &half.InitError{Component: "usb", Err: err}
	case <-srv.Ready():
	}
	closers = append(closers, srv)
	go func() {
		if err := <-usbErr; err != nil {
			logger.Error("usb server stopped", "error", err)
		}
	}()
	logger.Info("keyboard exported", "addr", srv.Addr(), "busid", fmt.Sprintf("%d-%d", meta.BusId, meta.DevId))
	opts.Transport = dev

	if r.Display.Bus >= 0 {
		panel, c, err := r.openDisplay()
		if err != nil {
			return &half.InitError{Component: "display", Err: err}
		}
		closers = append(closers, c)
		opts.Display = panel
	}

	h, err := half.New(opts)
	if err != nil {
		return err
	}

	return h.Run(ctx, r.Half.Period)
}

func (r *Run) engine(logger *slog.Logger) (layout.Engine, error) {
	if r.Keymap == "" {
		return layout.DefaultKeymap(), nil
	}
	km, names, err := layout.Load(r.Keymap)
	if err != nil {
		return nil, err
	}
	logger.Info("keymap loaded", "file", r.Keymap, "layers", names)
	return km, nil
}

var rotations = map[int]drivers.Rotation{
	0:   drivers.Rotation0,
	90:  drivers.Rotation90,
	180: drivers.Rotation180,
	270: drivers.Rotation270,
}

func (r *Run) openDisplay() (*display.Panel, io.Closer, error) {
	i2c, err := display.OpenI2C(r.Display.Bus)
	if err != nil {
		return nil, nil, err
	}
	panel := display.NewPanel(i2c, r.Display.Addr, rotations[r.Display.Rotation])
	if err := panel.Init(); err != nil {
		_ = i2c.Close()
		return nil, nil, err
	}
	return panel, i2c, nil
}

// Ports lists the serial devices usable as link ports.
type Ports struct{}

func (p *Ports) Run(logger *slog.Logger) error {
	ports, err := link.SerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		logger.Info("no serial ports found")
	}
	for _, name := range ports {
		fmt.Println(name)
	}
	return nil
}

var (
	_ arbiter.Transport = (*hid.Device)(nil)
	_ arbiter.Discarder = (*hid.Device)(nil)
)
