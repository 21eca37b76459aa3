package flasher

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/avr-flasher/internal/serial"
)

// ProgressCallback receives the upload progress in [0, 1].
type ProgressCallback func(progress float64)

// Option configures a Flasher.
type Option func(*Flasher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Flasher) {
		f.log = log
	}
}

// WithProgress sets the progress callback. It is called synchronously
// from the upload loop and must return quickly.
func WithProgress(cb ProgressCallback) Option {
	return func(f *Flasher) {
		f.progress = cb
	}
}

// WithDriver replaces the OS serial driver.
func WithDriver(driver serial.Driver) Option {
	return func(f *Flasher) {
		f.driver = driver
	}
}

// WithPort selects the serial port. Without it the only port the driver
// reports is used.
func WithPort(name string) Option {
	return func(f *Flasher) {
		f.port = name
	}
}

// WithSleep replaces time.Sleep for reset pulses and settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(f *Flasher) {
		f.sleep = sleep
	}
}
