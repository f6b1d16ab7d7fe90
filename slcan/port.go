package slcan

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is the byte stream to the adapter. Serial ports, PTYs and test pipes
// all satisfy it.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port settings.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC adapters ignore it.
	Baud int

	// ReadTimeout bounds each Read; 0 blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns settings for a USB SLCAN adapter on device.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// OpenPort opens the serial device described by cfg.
func OpenPort(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("slcan: no serial device configured")
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("slcan: open %s: %w", cfg.Device, err)
	}
	return p, nil
}
