package epd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ErrBusyTimeout is returned when the panel's busy line stays asserted past
// the deadline. The operation that hit it is aborted; the caller may retry
// it as a whole or reset the panel.
var ErrBusyTimeout = errors.New("busy line did not clear in time")

// DefaultBusyTimeout bounds WaitReady when no timeout is configured. It sits
// well above the worst-case full-refresh waveform duration.
const DefaultBusyTimeout = 5 * time.Second

const (
	// resetHold is the datasheet settle time on each edge of the reset
	// pulse. Shortening it leaves the controller in an undefined state.
	resetHold = 200 * time.Millisecond
	// busyPollInterval paces the busy polling loop so waiting does not
	// hammer the GPIO.
	busyPollInterval = 50 * time.Millisecond
)

// Bus is the transport a Device drives the panel through: command and data
// writes over the serial link plus the reset and busy sidebands. Every call
// blocks until the transfer is done and nothing is retried; a transport
// failure aborts the operation that issued it.
type Bus interface {
	// SendCommand writes one opcode byte in command mode.
	SendCommand(cmd byte) error
	// SendData writes one payload byte in data mode.
	SendData(b byte) error
	// SendDataBulk writes a whole payload in data mode under a single
	// chip-select assertion.
	SendDataBulk(p []byte) error
	// PulseReset performs the hardware reset pulse.
	PulseReset() error
	// WaitReady blocks until the busy line deasserts, failing with
	// ErrBusyTimeout once timeout has elapsed.
	WaitReady(timeout time.Duration) error
}

// SPIBus drives the panel over 4-wire SPI (mode 0) through periph.io, with
// DC, CS and RST as outputs and BUSY as an input. The busy line is
// active-high: high means the controller is occupied.
type SPIBus struct {
	conn  conn.Conn
	dc    gpio.PinOut
	cs    gpio.PinOut
	rst   gpio.PinOut
	busy  gpio.PinIn
	clock clockwork.Clock
	port  spi.PortCloser
}

// NewSPIBus wraps an already-connected SPI link and its sideband pins. A nil
// clock falls back to the wall clock; tests inject a fake one to drive the
// reset and busy-poll timing.
func NewSPIBus(c conn.Conn, dc, cs, rst gpio.PinOut, busy gpio.PinIn, clock clockwork.Clock) *SPIBus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SPIBus{conn: c, dc: dc, cs: cs, rst: rst, busy: busy, clock: clock}
}

// BusConfig names the host resources Open binds to.
type BusConfig struct {
	// Port is the SPI port name registered with the host; empty opens the
	// first available port.
	Port string
	// Speed is the SPI clock rate; zero falls back to 2 MHz, a safe rate
	// for this panel family.
	Speed physic.Frequency
	// Pin names resolved through gpioreg, for example "GPIO25".
	DC   string
	CS   string
	RST  string
	Busy string
}

// Open initializes the periph host, connects the SPI port and claims the
// four GPIO lines, returning a bus ready for a Device. Close releases the
// port.
func Open(cfg BusConfig) (*SPIBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: host init: %w", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("epd: open spi port %q: %w", cfg.Port, err)
	}

	speed := cfg.Speed
	if speed == 0 {
		speed = 2 * physic.MegaHertz
	}
	c, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: connect spi: %w", err)
	}

	out := func(name string, level gpio.Level) (gpio.PinOut, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("epd: gpio %q not found", name)
		}
		if err := p.Out(level); err != nil {
			return nil, fmt.Errorf("epd: gpio %q: %w", name, err)
		}
		return p, nil
	}

	dc, err := out(cfg.DC, gpio.Low)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	cs, err := out(cfg.CS, gpio.High)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	rst, err := out(cfg.RST, gpio.High)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	busy := gpioreg.ByName(cfg.Busy)
	if busy == nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: gpio %q not found", cfg.Busy)
	}
	if err := busy.In(gpio.Float, gpio.NoEdge); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: gpio %q: %w", cfg.Busy, err)
	}

	b := NewSPIBus(c, dc, cs, rst, busy, nil)
	b.port = port
	return b, nil
}

// SendCommand writes one opcode byte with the control line in command mode.
func (b *SPIBus) SendCommand(cmd byte) error {
	if err := b.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd: dc low: %w", err)
	}
	return b.transfer([]byte{cmd})
}

// SendData writes one payload byte with the control line in data mode.
func (b *SPIBus) SendData(d byte) error {
	if err := b.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: dc high: %w", err)
	}
	return b.transfer([]byte{d})
}

// SendDataBulk writes the whole payload in data mode without releasing
// chip-select in between.
func (b *SPIBus) SendDataBulk(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := b.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: dc high: %w", err)
	}
	return b.transfer(p)
}

// transfer clocks p out under one chip-select assertion. CS is released
// again even when the write fails.
func (b *SPIBus) transfer(p []byte) error {
	if err := b.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd: cs low: %w", err)
	}
	if err := b.conn.Tx(p, nil); err != nil {
		_ = b.cs.Out(gpio.High)
		return fmt.Errorf("epd: spi write: %w", err)
	}
	if err := b.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: cs high: %w", err)
	}
	return nil
}

// PulseReset drives the reset line low for 200 ms, then high for another
// 200 ms before the controller accepts commands.
func (b *SPIBus) PulseReset() error {
	if err := b.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd: rst low: %w", err)
	}
	b.clock.Sleep(resetHold)
	if err := b.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: rst high: %w", err)
	}
	b.clock.Sleep(resetHold)
	return nil
}

// WaitReady polls the busy line every 50 ms until it deasserts. A line
// still high once timeout has elapsed fails with ErrBusyTimeout.
func (b *SPIBus) WaitReady(timeout time.Duration) error {
	start := b.clock.Now()
	for b.busy.Read() == gpio.High {
		if b.clock.Since(start) >= timeout {
			return fmt.Errorf("epd: waited %s: %w", timeout, ErrBusyTimeout)
		}
		b.clock.Sleep(busyPollInterval)
	}
	return nil
}

// Close releases the SPI port when the bus was built by Open. A bus wrapped
// around an externally-owned connection leaves it untouched.
func (b *SPIBus) Close() error {
	if b.port == nil {
		return nil
	}
	if err := b.port.Close(); err != nil {
		return fmt.Errorf("epd: close spi port: %w", err)
	}
	return nil
}
