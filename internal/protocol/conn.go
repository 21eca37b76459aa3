package protocol

import (
	"github.com/rs/zerolog"

	"github.com/bigbag/avr-flasher/internal/serial"
)

// Conn is the byte channel an engine talks through. It logs raw traffic at
// trace level and counts bytes in both directions.
type Conn struct {
	Link serial.Link
	Log  zerolog.Logger

	Sent     int
	Received int
}

// NewConn wraps an open link.
func NewConn(link serial.Link, log zerolog.Logger) *Conn {
	return &Conn{Link: link, Log: log}
}

// Send writes data to the link.
func (c *Conn) Send(data []byte) error {
	c.Log.Trace().Int("len", len(data)).Hex("bytes", data).Msg("Sending")

	n, err := c.Link.Write(data)
	c.Sent += n
	return err
}

// Receive reads exactly n bytes.
func (c *Conn) Receive(n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	if err := c.Link.ReadFull(buf); err != nil {
		return nil, err
	}
	c.Received += n

	c.Log.Trace().Int("len", n).Hex("bytes", buf).Msg("Received")
	return buf, nil
}

// ReceiveByte reads a single byte.
func (c *Conn) ReceiveByte() (byte, error) {
	b, err := c.Receive(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Flush discards pending input.
func (c *Conn) Flush() error {
	return c.Link.Flush()
}
