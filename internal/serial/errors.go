package serial

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

var (
	// ErrTimeout is wrapped by read errors caused by an expired read timeout.
	ErrTimeout = errors.New("timeout")

	// ErrNotOpen is returned for I/O on a link that is not open.
	ErrNotOpen = errors.New("port not open")
)

// LinkError is a failure at the transport boundary.
type LinkError struct {
	Op   string
	Port string
	Err  error
}

func (e *LinkError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was an expired read timeout.
func (e *LinkError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// IsTimeout reports whether err is or wraps a read timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsPortGone reports whether err means the port disappeared, as happens
// while a USB board re-enumerates.
func IsPortGone(err error) bool {
	var code serial.PortErrorCode
	var portErr *serial.PortError
	var portErrValue serial.PortError
	switch {
	case errors.As(err, &portErr):
		code = portErr.Code()
	case errors.As(err, &portErrValue):
		code = portErrValue.Code()
	default:
		return false
	}

	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}
