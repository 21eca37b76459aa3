package config

import "fmt"

// Error reports a configuration problem detected before any hardware
// access: unknown model, MCU or protocol, a malformed reset descriptor or
// an ambiguous port selection.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "configuration error: " + e.Msg
}

// Errorf builds a configuration Error.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
