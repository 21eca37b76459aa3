package flasher

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/protocol"
	"github.com/bigbag/avr-flasher/internal/reset"
	"github.com/bigbag/avr-flasher/internal/serial"
)

const (
	openAttempts   = 5
	openRetryDelay = 200 * time.Millisecond
)

// session owns the link for the duration of one upload.
type session struct {
	profile  config.Profile
	cfg      serial.Config
	resetter *reset.Resetter
	log      zerolog.Logger

	link serial.Link
	conn *protocol.Conn
}

// openSession opens port through the profile's pre-open and post-open
// reset strategies and waits for the bootloader to settle.
func (f *Flasher) openSession(port string) (*session, error) {
	cfg := serial.Config{
		BaudRate:     f.profile.BaudRate,
		ReadTimeout:  f.profile.ReadTimeout,
		WriteTimeout: f.profile.WriteTimeout,
	}

	resetter := reset.New(f.driver, f.log)
	resetter.Sleep = f.sleep

	s := &session{
		profile:  f.profile,
		cfg:      cfg,
		resetter: resetter,
		log:      f.log,
	}

	f.log.Info().Str("port", port).Int("baud", cfg.BaudRate).Msg("Opening serial port")
	link := f.driver.NewLink(port, cfg)

	if d := f.profile.PreOpenReset; d.Kind != config.ResetNone {
		f.log.Info().Stringer("reset", d).Msg("Executing pre-open reset")
		var err error
		if link, err = resetter.Reset(d, link, cfg); err != nil {
			return nil, err
		}
	}

	if err := f.openLink(link); err != nil {
		return nil, err
	}
	s.link = link
	f.log.Debug().Str("port", link.Name()).Msg("Serial port opened")

	if d := f.profile.PostOpenReset; d.Kind != config.ResetNone {
		f.log.Info().Stringer("reset", d).Msg("Executing post-open reset")
		next, err := resetter.Reset(d, s.link, cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.link = next
		if !s.link.IsOpen() {
			if err := f.openLink(s.link); err != nil {
				return nil, err
			}
		}
	}

	if d := f.profile.SleepAfterOpen; d > 0 {
		f.log.Debug().Dur("sleep", d).Msg("Waiting for bootloader")
		f.sleep(d)
	}

	s.conn = protocol.NewConn(s.link, f.log)
	return s, nil
}

// openLink opens link, retrying while the port is missing because a USB
// board is still re-enumerating.
func (f *Flasher) openLink(link serial.Link) error {
	for attempt := 1; ; attempt++ {
		err := link.Open()
		if err == nil || attempt == openAttempts || !serial.IsPortGone(err) {
			return err
		}
		f.log.Debug().Err(err).Int("attempt", attempt).Msg("Port not ready, retrying")
		f.sleep(openRetryDelay)
	}
}

// close applies the close reset, drops DTR and RTS and closes the link.
// Failures are logged and otherwise ignored.
func (s *session) close() {
	if d := s.profile.CloseReset; d.Kind != config.ResetNone {
		s.log.Info().Stringer("reset", d).Msg("Resetting board")
		next, err := s.resetter.Reset(d, s.link, s.cfg)
		if err != nil {
			s.log.Warn().Err(err).Msg("Close reset failed")
		} else {
			s.link = next
		}
	}

	if !s.link.IsOpen() {
		return
	}

	s.log.Info().Str("port", s.link.Name()).Msg("Closing serial port")
	if err := s.link.SetDTR(false); err != nil {
		s.log.Debug().Err(err).Msg("Ignoring DTR error on close")
	}
	if err := s.link.SetRTS(false); err != nil {
		s.log.Debug().Err(err).Msg("Ignoring RTS error on close")
	}
	if err := s.link.Close(); err != nil {
		s.log.Debug().Err(err).Msg("Ignoring close error")
	}
}
