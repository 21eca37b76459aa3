// Package sim provides in-memory AVR bootloaders that answer the
// STK500v1, STK500v2 and AVR109 protocols over a serial.Link.
package sim

import (
	"bytes"
	"fmt"

	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/serial"
)

// device parses host requests. handle returns how many bytes of in it
// consumed and the reply; n == 0 means the request is not complete yet.
type device interface {
	handle(in []byte) (n int, reply []byte)
}

// Board is a simulated board running a bootloader.
type Board struct {
	geometry mcu.Geometry
	dev      device

	flash    []byte
	address  int // byte address of the next page transfer
	progMode bool

	pending []byte
	rx      bytes.Buffer

	signature    [3]byte
	corruptPages map[int]bool
	syncFailures int
	refuseLeave  bool

	written []int
	read    []int
	opens   []int
	lines   []string
}

// Option configures a Board.
type Option func(*Board)

// WithSignature makes the board report sig instead of its MCU signature.
func WithSignature(sig [3]byte) Option {
	return func(b *Board) {
		b.signature = sig
	}
}

// WithCorruptPage makes the page written at offset read back with its
// first byte inverted.
func WithCorruptPage(offset int) Option {
	return func(b *Board) {
		b.corruptPages[offset] = true
	}
}

// WithSyncFailures makes the board ignore the first n sync requests.
func WithSyncFailures(n int) Option {
	return func(b *Board) {
		b.syncFailures = n
	}
}

// WithLeaveFailure makes the board refuse to leave programming mode.
func WithLeaveFailure() Option {
	return func(b *Board) {
		b.refuseLeave = true
	}
}

// NewBoard creates a board with erased flash.
func NewBoard(protocol config.Protocol, geometry mcu.Geometry, opts ...Option) (*Board, error) {
	b := &Board{
		geometry:     geometry,
		flash:        bytes.Repeat([]byte{0xFF}, geometry.Flash.Size),
		signature:    geometry.Signature,
		corruptPages: make(map[int]bool),
	}

	switch protocol {
	case config.STK500v1:
		b.dev = &stk500v1Device{b: b}
	case config.STK500v2:
		b.dev = &stk500v2Device{b: b}
	case config.AVR109:
		b.dev = &avr109Device{b: b}
	default:
		return nil, config.Errorf("no simulator for protocol %s", protocol)
	}

	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Flash returns a copy of the flash contents.
func (b *Board) Flash() []byte {
	return append([]byte(nil), b.flash...)
}

// PagesWritten returns the byte offsets of every page write, in order.
func (b *Board) PagesWritten() []int {
	return append([]int(nil), b.written...)
}

// PagesRead returns the byte offsets of every page read, in order.
func (b *Board) PagesRead() []int {
	return append([]int(nil), b.read...)
}

// InProgrammingMode reports whether the host left programming mode.
func (b *Board) InProgrammingMode() bool {
	return b.progMode
}

// Opens returns the baud rate of every link open, in order.
func (b *Board) Opens() []int {
	return append([]int(nil), b.opens...)
}

// LineEvents returns the DTR/RTS changes seen by the board, formatted as
// "dtr=true" or "rts=false".
func (b *Board) LineEvents() []string {
	return append([]string(nil), b.lines...)
}

func (b *Board) connect(baud int) {
	b.opens = append(b.opens, baud)
	b.pending = nil
	b.rx.Reset()
}

func (b *Board) receive(data []byte) {
	b.pending = append(b.pending, data...)
	for len(b.pending) > 0 {
		n, reply := b.dev.handle(b.pending)
		if n == 0 {
			return
		}
		b.pending = b.pending[n:]
		b.rx.Write(reply)
	}
}

// consumeSync reports whether a sync request should be answered.
func (b *Board) consumeSync() bool {
	if b.syncFailures > 0 {
		b.syncFailures--
		return false
	}
	return true
}

func (b *Board) writePage(data []byte) {
	offset := b.address
	b.written = append(b.written, offset)

	if offset < len(b.flash) {
		copy(b.flash[offset:], data)
		if b.corruptPages[offset] {
			b.flash[offset] = ^b.flash[offset]
		}
	}
	b.address = offset + len(data)
}

func (b *Board) readPage(size int) []byte {
	offset := b.address
	b.read = append(b.read, offset)

	page := bytes.Repeat([]byte{0xFF}, size)
	if offset < len(b.flash) {
		copy(page, b.flash[offset:])
	}
	b.address = offset + size
	return page
}

// Driver hands out links to a single simulated board.
type Driver struct {
	Board *Board
	Port  string

	// port list scans left during which the board is re-enumerating
	gone int
}

// NewDriver exposes board under the given port name.
func NewDriver(board *Board, port string) *Driver {
	return &Driver{Board: board, Port: port}
}

// NewLink returns a closed link to the board.
func (d *Driver) NewLink(name string, cfg serial.Config) serial.Link {
	return &Link{drv: d, name: name, cfg: cfg}
}

// Ports lists the board's port, except for one scan right after a
// 1200 bps touch, as a USB bootloader does while it re-enumerates.
func (d *Driver) Ports() ([]string, error) {
	if d.gone > 0 {
		d.gone--
		return nil, nil
	}
	return []string{d.Port}, nil
}

// Link is a serial.Link to a simulated board.
type Link struct {
	drv  *Driver
	name string
	cfg  serial.Config
	open bool
}

// Name returns the port name the link was created for.
func (l *Link) Name() string { return l.name }

// IsOpen reports whether the link is open.
func (l *Link) IsOpen() bool { return l.open }

// Open connects to the board. Only the driver's port name can be opened.
func (l *Link) Open() error {
	if l.open {
		return nil
	}
	if l.name != l.drv.Port {
		return &serial.LinkError{Op: "open", Port: l.name, Err: fmt.Errorf("no such port")}
	}
	l.open = true
	l.drv.Board.connect(l.cfg.BaudRate)
	return nil
}

// Close disconnects. Closing a 1200 baud link starts a re-enumeration.
func (l *Link) Close() error {
	if !l.open {
		return nil
	}
	l.open = false
	if l.cfg.BaudRate == 1200 {
		l.drv.gone = 1
	}
	return nil
}

// Write passes data to the bootloader.
func (l *Link) Write(data []byte) (int, error) {
	if !l.open {
		return 0, &serial.LinkError{Op: "write", Port: l.name, Err: serial.ErrNotOpen}
	}
	l.drv.Board.receive(data)
	return len(data), nil
}

// ReadFull reads the bootloader's replies. It times out and drops the
// pending replies when fewer than len(buf) bytes are available.
func (l *Link) ReadFull(buf []byte) error {
	if !l.open {
		return &serial.LinkError{Op: "read", Port: l.name, Err: serial.ErrNotOpen}
	}
	rx := &l.drv.Board.rx
	if rx.Len() < len(buf) {
		rx.Reset()
		return &serial.LinkError{Op: "read", Port: l.name, Err: serial.ErrTimeout}
	}
	_, err := rx.Read(buf)
	return err
}

// Flush discards pending replies.
func (l *Link) Flush() error {
	if !l.open {
		return &serial.LinkError{Op: "flush", Port: l.name, Err: serial.ErrNotOpen}
	}
	l.drv.Board.rx.Reset()
	return nil
}

// SetDTR records a DTR change.
func (l *Link) SetDTR(v bool) error {
	if !l.open {
		return &serial.LinkError{Op: "set DTR", Port: l.name, Err: serial.ErrNotOpen}
	}
	l.drv.Board.lines = append(l.drv.Board.lines, fmt.Sprintf("dtr=%t", v))
	return nil
}

// SetRTS records an RTS change.
func (l *Link) SetRTS(v bool) error {
	if !l.open {
		return &serial.LinkError{Op: "set RTS", Port: l.name, Err: serial.ErrNotOpen}
	}
	l.drv.Board.lines = append(l.drv.Board.lines, fmt.Sprintf("rts=%t", v))
	return nil
}
