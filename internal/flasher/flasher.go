package flasher

import (
	"bytes"
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/detect"
	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/memory"
	"github.com/bigbag/avr-flasher/internal/protocol"
	"github.com/bigbag/avr-flasher/internal/protocol/avr109"
	"github.com/bigbag/avr-flasher/internal/protocol/stk500v1"
	"github.com/bigbag/avr-flasher/internal/protocol/stk500v2"
	"github.com/bigbag/avr-flasher/internal/serial"
)

// Stats summarizes the traffic of the last upload.
type Stats struct {
	BytesSent     int
	BytesReceived int
	PagesWritten  int
	PagesRead     int
}

// Flasher uploads memory images to one board model.
type Flasher struct {
	profile  config.Profile
	geometry mcu.Geometry

	port     string
	driver   serial.Driver
	log      zerolog.Logger
	progress ProgressCallback
	sleep    func(time.Duration)

	stats Stats
}

// New creates a Flasher for the given board profile.
func New(profile config.Profile, opts ...Option) (*Flasher, error) {
	geometry, ok := mcu.Lookup(profile.MCU)
	if !ok {
		return nil, config.Errorf("unsupported MCU %v", profile.MCU)
	}
	if _, err := newEngine(profile.Protocol, nil, geometry); err != nil {
		return nil, err
	}

	f := &Flasher{
		profile:  profile,
		geometry: geometry,
		driver:   serial.OSDriver{},
		log:      zerolog.Nop(),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Geometry returns the MCU description of the board.
func (f *Flasher) Geometry() mcu.Geometry {
	return f.geometry
}

// Stats returns the traffic counters of the last upload.
func (f *Flasher) Stats() Stats {
	return f.stats
}

// Upload writes image to the board's flash and verifies it.
//
// The port is resolved and the image size checked before the link is
// opened. The link is always closed through the close reset, and
// programming mode is left on failure once it was entered.
func (f *Flasher) Upload(image *memory.Image) error {
	f.stats = Stats{}

	if hmo := image.HighestModifiedOffset(); hmo >= f.geometry.Flash.Size {
		return config.Errorf("image ends at 0x%X but %s flash is %d bytes",
			hmo, f.geometry.Name, f.geometry.Flash.Size)
	}

	port, err := detect.DetectPort(f.driver, f.port)
	if err != nil {
		return err
	}

	s, err := f.openSession(port)
	if err != nil {
		return err
	}
	defer s.close()

	defer func() {
		f.stats.BytesSent = s.conn.Sent
		f.stats.BytesReceived = s.conn.Received
	}()

	engine, err := newEngine(f.profile.Protocol, s.conn, f.geometry)
	if err != nil {
		return err
	}

	f.log.Info().Msg("Establishing sync...")
	if err := engine.EstablishSync(); err != nil {
		return err
	}

	f.log.Info().Msg("Checking device signature...")
	if err := engine.CheckDeviceSignature(); err != nil {
		return err
	}

	f.log.Info().Msg("Initializing device...")
	if err := engine.InitializeDevice(); err != nil {
		return err
	}

	f.log.Info().Msg("Enabling programming mode...")
	if err := engine.EnableProgrammingMode(); err != nil {
		return err
	}

	if err := f.ProgramDevice(engine, image); err != nil {
		f.abort(engine)
		return err
	}
	if err := f.VerifyProgram(engine, image); err != nil {
		f.abort(engine)
		return err
	}

	f.log.Info().Msg("Leaving programming mode...")
	if err := engine.LeaveProgrammingMode(); err != nil {
		return err
	}

	f.log.Info().Msg("All done, shutting down!")
	return nil
}

// abort tries to leave programming mode after a failure.
func (f *Flasher) abort(engine protocol.Engine) {
	if err := engine.LeaveProgrammingMode(); err != nil {
		f.log.Warn().Err(err).Msg("Failed to leave programming mode")
	}
}

// ProgramDevice writes every flash page of image that holds a modified
// byte, in increasing offset order. Pages without modified bytes are
// skipped.
func (f *Flasher) ProgramDevice(engine protocol.Engine, image *memory.Image) error {
	size := image.HighestModifiedOffset() + 1
	mem := f.geometry.Flash
	pageSize := mem.PageSize

	f.log.Info().Int("bytes", size).Int("page_size", pageSize).Msg("Preparing to write")

	for offset := 0; offset < size; offset += pageSize {
		f.report(float64(offset) / float64(size*2))

		if !image.PageModified(offset, pageSize) {
			f.log.Trace().Int("offset", offset).Msg("Skip writing page")
			continue
		}

		f.log.Debug().Int("offset", offset).Msg("Writing page")
		if err := engine.LoadAddress(mem, offset); err != nil {
			return err
		}
		if err := engine.ExecuteWritePage(mem, offset, image.Page(offset, pageSize)); err != nil {
			return err
		}
		f.stats.PagesWritten++
	}

	f.log.Info().Int("bytes", size).Msg("Bytes written to flash memory")
	return nil
}

// VerifyProgram reads back every page up to the last modified byte,
// including pages ProgramDevice skipped, and compares it with image.
func (f *Flasher) VerifyProgram(engine protocol.Engine, image *memory.Image) error {
	size := image.HighestModifiedOffset() + 1
	mem := f.geometry.Flash
	pageSize := mem.PageSize

	f.log.Info().Int("bytes", size).Int("page_size", pageSize).Msg("Preparing to verify")

	for offset := 0; offset < size; offset += pageSize {
		f.report(float64(size+offset) / float64(size*2))

		f.log.Debug().Int("offset", offset).Msg("Verifying page")
		expected := image.Page(offset, pageSize)

		if err := engine.LoadAddress(mem, offset); err != nil {
			return err
		}
		actual, err := engine.ExecuteReadPage(mem)
		if err != nil {
			return err
		}
		f.stats.PagesRead++

		if !bytes.Equal(expected, actual) {
			f.log.Info().
				Hex("expected", expected).
				Hex("actual", actual).
				Msg("Difference encountered during verification")
			return &VerificationError{Offset: offset, Expected: expected, Actual: actual}
		}
	}

	// The loop stops one page short of 1.0.
	f.report(1)
	f.log.Info().Int("bytes", size).Msg("Bytes verified")
	return nil
}

func (f *Flasher) report(progress float64) {
	if f.progress != nil {
		f.progress(progress)
	}
}

// newEngine selects the protocol engine. conn may be nil when only the
// protocol is being validated.
func newEngine(p config.Protocol, conn *protocol.Conn, geometry mcu.Geometry) (protocol.Engine, error) {
	switch p {
	case config.STK500v1:
		return stk500v1.New(conn, geometry), nil
	case config.STK500v2:
		return stk500v2.New(conn, geometry), nil
	case config.AVR109:
		return avr109.New(conn, geometry), nil
	default:
		return nil, config.Errorf("unsupported protocol %s", p)
	}
}
