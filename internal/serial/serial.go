package serial

import (
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout is used when a Config leaves ReadTimeout unset.
const DefaultReadTimeout = time.Second

// Config holds the line settings of a link.
type Config struct {
	BaudRate     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Link is a serial connection to a board. A link is created closed and
// must be opened before any I/O or control-line change.
type Link interface {
	Name() string
	Open() error
	IsOpen() bool
	Close() error

	Write(data []byte) (int, error)
	// ReadFull blocks until len(buf) bytes arrive or the read timeout
	// expires, in which case the error wraps ErrTimeout.
	ReadFull(buf []byte) error
	// Flush discards buffered input.
	Flush() error

	SetDTR(value bool) error
	SetRTS(value bool) error
}

// Driver creates links and enumerates ports.
type Driver interface {
	NewLink(name string, cfg Config) Link
	Ports() ([]string, error)
}

// OSDriver opens the host's serial ports.
type OSDriver struct{}

// NewLink returns a closed Port.
func (OSDriver) NewLink(name string, cfg Config) Link {
	return &Port{portName: name, cfg: cfg}
}

// Ports lists the serial ports the OS currently reports.
func (OSDriver) Ports() ([]string, error) {
	return ListPorts()
}

// Port is a Link backed by go.bug.st/serial.
type Port struct {
	port     serial.Port
	portName string
	cfg      Config
}

// Open opens the port with 8N1 framing at the configured baud rate.
func (p *Port) Open() error {
	if p.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: p.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(p.portName, mode)
	if err != nil {
		return &LinkError{Op: "open", Port: p.portName, Err: err}
	}

	timeout := p.cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return &LinkError{Op: "set read timeout", Port: p.portName, Err: err}
	}

	p.port = port
	return nil
}

// IsOpen reports whether the port is open.
func (p *Port) IsOpen() bool {
	return p.port != nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return &LinkError{Op: "close", Port: p.portName, Err: err}
	}
	return nil
}

// Write writes all of data to the serial port.
func (p *Port) Write(data []byte) (int, error) {
	if p.port == nil {
		return 0, &LinkError{Op: "write", Port: p.portName, Err: ErrNotOpen}
	}

	written := 0
	for written < len(data) {
		n, err := p.port.Write(data[written:])
		if err != nil {
			return written, &LinkError{Op: "write", Port: p.portName, Err: err}
		}
		written += n
	}
	return written, nil
}

// ReadFull fills buf from the serial port.
func (p *Port) ReadFull(buf []byte) error {
	if p.port == nil {
		return &LinkError{Op: "read", Port: p.portName, Err: ErrNotOpen}
	}

	read := 0
	for read < len(buf) {
		n, err := p.port.Read(buf[read:])
		if err != nil {
			return &LinkError{Op: "read", Port: p.portName, Err: err}
		}
		if n == 0 {
			return &LinkError{Op: "read", Port: p.portName, Err: ErrTimeout}
		}
		read += n
	}
	return nil
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	if p.port == nil {
		return &LinkError{Op: "flush", Port: p.portName, Err: ErrNotOpen}
	}
	if err := p.port.ResetInputBuffer(); err != nil {
		return &LinkError{Op: "flush", Port: p.portName, Err: err}
	}
	return nil
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	if p.port == nil {
		return &LinkError{Op: "set DTR", Port: p.portName, Err: ErrNotOpen}
	}
	if err := p.port.SetDTR(value); err != nil {
		return &LinkError{Op: "set DTR", Port: p.portName, Err: err}
	}
	return nil
}

// SetRTS sets the RTS signal.
func (p *Port) SetRTS(value bool) error {
	if p.port == nil {
		return &LinkError{Op: "set RTS", Port: p.portName, Err: ErrNotOpen}
	}
	if err := p.port.SetRTS(value); err != nil {
		return &LinkError{Op: "set RTS", Port: p.portName, Err: err}
	}
	return nil
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.portName
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &LinkError{Op: "list ports", Err: err}
	}
	return ports, nil
}
