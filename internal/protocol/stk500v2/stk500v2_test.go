package stk500v2

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

func mega2560(t *testing.T) mcu.Geometry {
	t.Helper()
	g, ok := mcu.Lookup(mcu.ATmega2560)
	if !ok {
		t.Fatal("mcu.Lookup(ATmega2560) failed")
	}
	return g
}

func newProgrammer(t *testing.T, opts ...sim.Option) (*Programmer, *sim.Board) {
	t.Helper()

	g := mega2560(t)
	board, err := sim.NewBoard(config.STK500v2, g, opts...)
	if err != nil {
		t.Fatalf("sim.NewBoard() error = %v", err)
	}
	link := sim.NewDriver(board, "/dev/ttyACM0").NewLink("/dev/ttyACM0", serial.Config{BaudRate: 115200})
	if err := link.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	return New(protocol.NewConn(link, zerolog.Nop()), g), board
}

func TestEstablishSync(t *testing.T) {
	p, _ := newProgrammer(t)
	if err := p.EstablishSync(); err != nil {
		t.Fatalf("EstablishSync() error = %v", err)
	}
}

func TestEstablishSync_Retries(t *testing.T) {
	p, _ := newProgrammer(t, sim.WithSyncFailures(3))
	if err := p.EstablishSync(); err != nil {
		t.Fatalf("EstablishSync() error = %v", err)
	}
	if p.seq != 4 {
		t.Errorf("sequence = %d, want 4 SIGN_ON messages", p.seq)
	}
}

func TestEstablishSync_GivesUp(t *testing.T) {
	p, _ := newProgrammer(t, sim.WithSyncFailures(MaxSyncAttempts))

	err := p.EstablishSync()
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) || protoErr.Operation != "sync" {
		t.Fatalf("EstablishSync() error = %v, want sync *protocol.Error", err)
	}
	if !serial.IsTimeout(err) {
		t.Errorf("error should wrap the last timeout: %v", err)
	}
}

func TestCheckDeviceSignature(t *testing.T) {
	p, _ := newProgrammer(t)
	if err := p.CheckDeviceSignature(); err != nil {
		t.Fatalf("CheckDeviceSignature() error = %v", err)
	}
}

func TestCheckDeviceSignature_Mismatch(t *testing.T) {
	p, _ := newProgrammer(t, sim.WithSignature([3]byte{0x1E, 0x95, 0x0F}))

	err := p.CheckDeviceSignature()
	var mismatch *protocol.SignatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("CheckDeviceSignature() error = %v, want *SignatureMismatchError", err)
	}
	if mismatch.Actual != [3]byte{0x1E, 0x95, 0x0F} {
		t.Errorf("Actual = % X", mismatch.Actual)
	}
}

func TestInitializeAndProgrammingMode(t *testing.T) {
	p, board := newProgrammer(t)

	if err := p.InitializeDevice(); err != nil {
		t.Fatalf("InitializeDevice() error = %v", err)
	}
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

func TestWriteReadPage_ExtendedAddress(t *testing.T) {
	g := mega2560(t)
	p, board := newProgrammer(t)

	page := bytes.Repeat([]byte{0x5A}, g.Flash.PageSize)
	offset := 0x20000 + g.Flash.PageSize

	if err := p.LoadAddress(g.Flash, offset); err != nil {
		t.Fatalf("LoadAddress() error = %v", err)
	}
	if err := p.ExecuteWritePage(g.Flash, offset, page); err != nil {
		t.Fatalf("ExecuteWritePage() error = %v", err)
	}
	if got := board.PagesWritten(); len(got) != 1 || got[0] != offset {
		t.Errorf("PagesWritten() = %v, want [0x%X]", got, offset)
	}

	if err := p.LoadAddress(g.Flash, offset); err != nil {
		t.Fatalf("LoadAddress() error = %v", err)
	}
	got, err := p.ExecuteReadPage(g.Flash)
	if err != nil {
		t.Fatalf("ExecuteReadPage() error = %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Errorf("ExecuteReadPage() returned % X...", got[:8])
	}
}

func TestCommand_UnknownCommand(t *testing.T) {
	p, _ := newProgrammer(t)

	_, err := p.command("probe", []byte{0x7F}, 2)
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		t.Fatalf("command() error = %v, want *protocol.Error", err)
	}
	if protoErr.Protocol != "STK500v2" {
		t.Errorf("protocol = %q", protoErr.Protocol)
	}
}
