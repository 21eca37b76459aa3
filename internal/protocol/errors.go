package protocol

import (
	"fmt"

	"github.com/bigbag/avr-flasher/internal/mcu"
)

// Error is a bootloader protocol failure: an unexpected reply, a bad
// frame, a refused command or a transport error during an operation.
type Error struct {
	Protocol  string
	Operation string
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Protocol, e.Operation)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SignatureMismatchError indicates that the device reported a signature
// other than the one of the configured MCU.
type SignatureMismatchError struct {
	Expected [3]byte
	Actual   [3]byte
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch: expected %s, device has %s",
		mcu.SignatureString(e.Expected[:]), mcu.SignatureString(e.Actual[:]))
}

// CheckSignature compares a signature read from the device with the
// expected one and returns a *SignatureMismatchError when they differ.
func CheckSignature(expected [3]byte, actual []byte) error {
	var got [3]byte
	copy(got[:], actual)
	if len(actual) != len(got) || got != expected {
		return &SignatureMismatchError{Expected: expected, Actual: got}
	}
	return nil
}
