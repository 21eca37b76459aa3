package avr109

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/protocol"
	"github.com/bigbag/avr-flasher/internal/serial"
	"github.com/bigbag/avr-flasher/internal/sim"
)

func atmega32u4(t *testing.T) mcu.Geometry {
	t.Helper()
	g, ok := mcu.Lookup(mcu.ATmega32U4)
	if !ok {
		t.Fatal("mcu.Lookup(ATmega32U4) failed")
	}
	return g
}

func newProgrammer(t *testing.T, g mcu.Geometry, opts ...sim.Option) (*Programmer, *sim.Board, *protocol.Conn) {
	t.Helper()

	board, err := sim.NewBoard(config.AVR109, g, opts...)
	if err != nil {
		t.Fatalf("sim.NewBoard() error = %v", err)
	}
	link := sim.NewDriver(board, "COM7").NewLink("COM7", serial.Config{BaudRate: 57600})
	if err := link.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	conn := protocol.NewConn(link, zerolog.Nop())
	return New(conn, g), board, conn
}

func TestEstablishSync_NoTraffic(t *testing.T) {
	p, _, conn := newProgrammer(t, atmega32u4(t))

	if err := p.EstablishSync(); err != nil {
		t.Fatalf("EstablishSync() error = %v", err)
	}
	if conn.Sent != 0 || conn.Received != 0 {
		t.Errorf("traffic = %d/%d, want none", conn.Sent, conn.Received)
	}
}

func TestCheckDeviceSignature(t *testing.T) {
	p, _, _ := newProgrammer(t, atmega32u4(t))
	if err := p.CheckDeviceSignature(); err != nil {
		t.Fatalf("CheckDeviceSignature() error = %v", err)
	}
}

func TestCheckDeviceSignature_Mismatch(t *testing.T) {
	p, _, _ := newProgrammer(t, atmega32u4(t), sim.WithSignature([3]byte{0x1E, 0x95, 0x0F}))

	err := p.CheckDeviceSignature()
	var mismatch *protocol.SignatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("CheckDeviceSignature() error = %v, want *SignatureMismatchError", err)
	}
	if mismatch.Expected != [3]byte{0x1E, 0x95, 0x87} {
		t.Errorf("Expected = % X", mismatch.Expected)
	}
}

func TestInitializeDevice(t *testing.T) {
	g := atmega32u4(t)
	p, _, _ := newProgrammer(t, g)

	if err := p.InitializeDevice(); err != nil {
		t.Fatalf("InitializeDevice() error = %v", err)
	}
	if p.bufferSize != g.Flash.PageSize {
		t.Errorf("bufferSize = %d, want %d", p.bufferSize, g.Flash.PageSize)
	}
}

func TestInitializeDevice_UnsupportedDevice(t *testing.T) {
	// The board lists the 32U4 code, the programmer expects another one
	board, err := sim.NewBoard(config.AVR109, atmega32u4(t))
	if err != nil {
		t.Fatal(err)
	}
	link := sim.NewDriver(board, "COM7").NewLink("COM7", serial.Config{BaudRate: 57600})
	if err := link.Open(); err != nil {
		t.Fatal(err)
	}

	other := atmega32u4(t)
	other.DeviceCode = 0x99
	p := New(protocol.NewConn(link, zerolog.Nop()), other)

	err = p.InitializeDevice()
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		t.Fatalf("InitializeDevice() error = %v, want *protocol.Error", err)
	}
	if protoErr.Operation != "initialize" {
		t.Errorf("operation = %q, want initialize", protoErr.Operation)
	}
}

func TestProgrammingMode(t *testing.T) {
	p, board, _ := newProgrammer(t, atmega32u4(t))

	if err := p.EnableProgrammingMode(); err != nil {
		t.Fatalf("EnableProgrammingMode() error = %v", err)
	}
	if !board.InProgrammingMode() {
		t.Error("board should be in programming mode")
	}
	if err := p.LeaveProgrammingMode(); err != nil {
		t.Fatalf("LeaveProgrammingMode() error = %v", err)
	}
	if board.InProgrammingMode() {
		t.Error("board should have left programming mode")
	}
}

func TestWriteReadPage(t *testing.T) {
	g := atmega32u4(t)
	p, board, _ := newProgrammer(t, g)

	page := make([]byte, g.Flash.PageSize)
	for i := range page {
		page[i] = byte(0xFF - i)
	}
	offset := 10 * g.Flash.PageSize

	if err := p.LoadAddress(g.Flash, offset); err != nil {
		t.Fatalf("LoadAddress() error = %v", err)
	}
	if err := p.ExecuteWritePage(g.Flash, offset, page); err != nil {
		t.Fatalf("ExecuteWritePage() error = %v", err)
	}
	if got := board.PagesWritten(); len(got) != 1 || got[0] != offset {
		t.Errorf("PagesWritten() = %v, want [%d]", got, offset)
	}

	if err := p.LoadAddress(g.Flash, offset); err != nil {
		t.Fatalf("LoadAddress() error = %v", err)
	}
	got, err := p.ExecuteReadPage(g.Flash)
	if err != nil {
		t.Fatalf("ExecuteReadPage() error = %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Errorf("ExecuteReadPage() = % X, want % X", got, page)
	}
}

func TestExecuteWritePage_ExceedsBuffer(t *testing.T) {
	g := atmega32u4(t)
	p, board, _ := newProgrammer(t, g)
	p.bufferSize = 64

	err := p.ExecuteWritePage(g.Flash, 0, make([]byte, 128))
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		t.Fatalf("ExecuteWritePage() error = %v, want *protocol.Error", err)
	}
	if len(board.PagesWritten()) != 0 {
		t.Error("nothing should reach the board")
	}
}

func TestCommand_UnexpectedReply(t *testing.T) {
	p, _, _ := newProgrammer(t, atmega32u4(t))

	err := p.command("probe", 'Z')
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		t.Fatalf("command() error = %v, want *protocol.Error", err)
	}
}

func TestCommand_Timeout(t *testing.T) {
	p, _, _ := newProgrammer(t, atmega32u4(t))

	// 'g' without its arguments is not answered
	if err := p.send("probe", CmdBlockRead); err != nil {
		t.Fatal(err)
	}
	_, err := p.receive("probe", 1)
	if !serial.IsTimeout(err) {
		t.Errorf("receive() error = %v, want timeout", err)
	}
}
