package uart

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
)

// Serial defaults for the controller board link (115200 8N1).
const (
	DefaultBaudRate       = 115200
	DefaultDataBits       = 8
	DefaultReadTimeout    = 20 * time.Millisecond
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultReadBufferSize = 128
)

// Port is the subset of a serial port the bridge needs.
// go.bug.st/serial.Port satisfies it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	// SetReadTimeout bounds each Read. A Read that times out returns 0, nil.
	SetReadTimeout(t time.Duration) error
}

// Config describes the serial device and the poll loop.
type Config struct {
	Name     string
	BaudRate int
	DataBits int
	// Parity is one of "N", "O", "E", "M", "S".
	Parity string
	// StopBits is one of "1", "1.5", "2".
	StopBits string

	ReadTimeout    time.Duration
	PollInterval   time.Duration
	ReadBufferSize int

	// Greeting is written once on Start. Empty disables it.
	Greeting string
}

// FromConfig converts the file configuration to a Config.
func FromConfig(c config.SerialConfig) Config {
	return Config{
		Name:           c.Port,
		BaudRate:       c.BaudRate,
		DataBits:       c.DataBits,
		Parity:         c.Parity,
		StopBits:       c.StopBits,
		ReadTimeout:    time.Duration(c.ReadTimeoutMS) * time.Millisecond,
		PollInterval:   time.Duration(c.PollIntervalMS) * time.Millisecond,
		ReadBufferSize: c.ReadBufferSize,
		Greeting:       c.Greeting,
	}
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits <= 0 {
		c.DataBits = DefaultDataBits
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.PollInterval < 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	return c
}

// openSerial is swapped in tests.
var openSerial = func(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// listPorts is swapped in tests.
var listPorts = serial.GetPortsList

// Open opens the serial device described by cfg and applies its read timeout.
func Open(cfg Config) (Port, error) {
	cfg = cfg.withDefaults()

	port, err := openSerial(cfg.Name, buildMode(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w%s", ErrOpenFailed, cfg.Name, err, availablePorts())
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: setting read timeout: %w", ErrOpenFailed, err)
	}

	return port, nil
}

// buildMode maps the textual parity and stop bit settings to serial.Mode.
func buildMode(cfg Config) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch strings.ToUpper(cfg.Parity) {
	case "O":
		mode.Parity = serial.OddParity
	case "E":
		mode.Parity = serial.EvenParity
	case "M":
		mode.Parity = serial.MarkParity
	case "S":
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}

	switch cfg.StopBits {
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	return mode
}

// availablePorts renders the detected ports as an error suffix.
func availablePorts() string {
	ports, err := listPorts()
	if err != nil || len(ports) == 0 {
		return " (no serial ports detected)"
	}
	return " (available: " + strings.Join(ports, ", ") + ")"
}
