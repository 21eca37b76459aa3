package reset

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/serial"
)

const (
	// TouchBaudRate is the baud rate that makes USB bootloaders reset.
	TouchBaudRate = 1200

	// DTRPulse is how long DTR is held during a plain DTR toggle.
	DTRPulse = 50 * time.Millisecond

	DefaultDiscoveryTimeout  = 10 * time.Second
	DefaultDiscoveryInterval = 100 * time.Millisecond

	// DefaultDiscoverySettle is how long the original port may stay listed
	// without ever disappearing before it is assumed to be the bootloader.
	DefaultDiscoverySettle = 2 * time.Second
)

// Resetter applies reset descriptors to links.
type Resetter struct {
	Driver serial.Driver
	Logger zerolog.Logger

	// Port discovery after a 1200 bps touch
	DiscoveryTimeout  time.Duration
	DiscoveryInterval time.Duration
	DiscoverySettle   time.Duration

	// Sleep is time.Sleep unless replaced in tests.
	Sleep func(time.Duration)
}

// New creates a Resetter with default discovery timings.
func New(driver serial.Driver, logger zerolog.Logger) *Resetter {
	return &Resetter{
		Driver:            driver,
		Logger:            logger,
		DiscoveryTimeout:  DefaultDiscoveryTimeout,
		DiscoveryInterval: DefaultDiscoveryInterval,
		DiscoverySettle:   DefaultDiscoverySettle,
		Sleep:             time.Sleep,
	}
}

// Reset applies d to link and returns the link to use from now on. The
// 1200 bps touch returns a new, closed link because the board may come
// back under a different port name. Every other strategy returns link.
func (r *Resetter) Reset(d config.ResetDescriptor, link serial.Link, cfg serial.Config) (serial.Link, error) {
	switch d.Kind {
	case config.ResetNone:
		return link, nil
	case config.Reset1200bps:
		return r.touch1200(link, cfg)
	case config.ResetDTR:
		return link, r.toggleDTR(link, d.Invert)
	case config.ResetDTRRTS:
		return link, r.toggleDTRRTS(link, d.Wait1, d.Wait2, d.Invert)
	default:
		return link, config.Errorf("unsupported reset behavior %s", d)
	}
}

// toggleDTR asserts DTR (or its inverse), pauses and releases it.
func (r *Resetter) toggleDTR(link serial.Link, invert bool) error {
	r.Logger.Debug().Str("port", link.Name()).Bool("invert", invert).Msg("Toggling DTR")

	if err := link.SetDTR(!invert); err != nil {
		return err
	}
	r.sleep(DTRPulse)
	return link.SetDTR(invert)
}

// toggleDTRRTS drives DTR and RTS together through a two phase pulse.
func (r *Resetter) toggleDTRRTS(link serial.Link, wait1, wait2 time.Duration, invert bool) error {
	r.Logger.Debug().
		Str("port", link.Name()).
		Dur("wait1", wait1).
		Dur("wait2", wait2).
		Bool("invert", invert).
		Msg("Toggling DTR/RTS")

	if err := setLines(link, !invert); err != nil {
		return err
	}
	r.sleep(wait1)

	if err := setLines(link, invert); err != nil {
		return err
	}
	r.sleep(wait2)

	return nil
}

func setLines(link serial.Link, level bool) error {
	if err := link.SetDTR(level); err != nil {
		return err
	}
	return link.SetRTS(level)
}

// touch1200 opens the port at 1200 baud and closes it again, then waits
// for the board to re-enumerate.
func (r *Resetter) touch1200(link serial.Link, cfg serial.Config) (serial.Link, error) {
	name := link.Name()
	r.Logger.Info().Str("port", name).Msg("Issuing forced 1200bps reset...")

	if link.IsOpen() {
		if err := link.Close(); err != nil {
			r.Logger.Debug().Err(err).Msg("Ignoring close error before 1200bps touch")
		}
	}

	before, err := r.Driver.Ports()
	if err != nil {
		return nil, err
	}

	touch := r.Driver.NewLink(name, serial.Config{BaudRate: TouchBaudRate, ReadTimeout: cfg.ReadTimeout})
	if err := touch.Open(); err != nil {
		return nil, err
	}
	if err := touch.Close(); err != nil {
		r.Logger.Debug().Err(err).Msg("Ignoring close error after 1200bps touch")
	}

	newName := r.waitForPort(name, before)
	if newName != name {
		r.Logger.Info().Str("old", name).Str("new", newName).Msg("Board re-enumerated on a new port")
	}

	return r.Driver.NewLink(newName, cfg), nil
}

// waitForPort polls the port list until a port appears that was not
// present before the touch, or the original port comes back after having
// disappeared. A port that never disappears is accepted once it stayed
// listed for the settle interval. On timeout the original name is returned.
func (r *Resetter) waitForPort(name string, before []string) string {
	known := make(map[string]bool, len(before))
	for _, p := range before {
		known[p] = true
	}

	interval := r.DiscoveryInterval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	attempts := int(r.DiscoveryTimeout / interval)

	gone := false
	var listed time.Duration
	for i := 0; i < attempts; i++ {
		r.sleep(interval)

		ports, err := r.Driver.Ports()
		if err != nil {
			continue
		}

		present := false
		for _, p := range ports {
			if !known[p] {
				return p
			}
			if p == name {
				present = true
			}
		}

		switch {
		case !present:
			gone = true
		case gone:
			return name
		default:
			listed += interval
			if r.DiscoverySettle > 0 && listed >= r.DiscoverySettle {
				r.Logger.Debug().Str("port", name).Dur("settle", r.DiscoverySettle).Msg("Port stayed listed, reusing it")
				return name
			}
		}
	}

	r.Logger.Debug().Str("port", name).Msg("No new port detected, reusing original port")
	return name
}

func (r *Resetter) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if r.Sleep != nil {
		r.Sleep(d)
		return
	}
	time.Sleep(d)
}
