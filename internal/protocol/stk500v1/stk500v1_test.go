package stk500v1

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

func geometry(t *testing.T, id mcu.ID) mcu.Geometry {
	t.Helper()
	g, ok := mcu.Lookup(id)
	if !ok {
		t.Fatalf("mcu.Lookup(%v) failed", id)
	}
	return g
}

func newProgrammer(t *testing.T, g mcu.Geometry, opts ...sim.Option) (*Programmer, *sim.Board, *protocol.Conn) {
	t.Helper()

	board, err := sim.NewBoard(config.STK500v1, g, opts...)
	if err != nil {
		t.Fatalf("sim.NewBoard() error = %v", err)
	}
	link := sim.NewDriver(board, "COM3").NewLink("COM3", serial.Config{BaudRate: 115200})
	if err := link.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	conn := protocol.NewConn(link, zerolog.Nop())
	return New(conn, g), board, conn
}

func TestEstablishSync(t *testing.T) {
	p, _, conn := newProgrammer(t, geometry(t, mcu.ATmega328P))

	if err := p.EstablishSync(); err != nil {
		t.Fatalf("EstablishSync() error = %v", err)
	}
	if conn.Sent != 2 || conn.Received != 2 {
		t.Errorf("traffic = %d/%d, want 2/2", conn.Sent, conn.Received)
	}
}

func TestEstablishSync_Retries(t *testing.T) {
	p, _, conn := newProgrammer(t, geometry(t, mcu.ATmega328P), sim.WithSyncFailures(5))

	if err := p.EstablishSync(); err != nil {
		t.Fatalf("EstablishSync() error = %v", err)
	}
	if conn.Sent != 12 {
		t.Errorf("sent = %d bytes, want 6 GET_SYNC requests", conn.Sent)
	}
}

func TestEstablishSync_GivesUp(t *testing.T) {
	p, _, conn := newProgrammer(t, geometry(t, mcu.ATmega328P), sim.WithSyncFailures(MaxSyncAttempts))

	err := p.EstablishSync()
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		t.Fatalf("EstablishSync() error = %v, want *protocol.Error", err)
	}
	if protoErr.Operation != "sync" {
		t.Errorf("operation = %q, want sync", protoErr.Operation)
	}
	if !serial.IsTimeout(err) {
		t.Errorf("error should wrap the last timeout: %v", err)
	}
	if conn.Sent != 2*MaxSyncAttempts {
		t.Errorf("sent = %d bytes, want %d", conn.Sent, 2*MaxSyncAttempts)
	}
}

func TestCheckDeviceSignature(t *testing.T) {
	for _, id := range []mcu.ID{mcu.ATmega168, mcu.ATmega328P, mcu.ATmega1284} {
		p, _, _ := newProgrammer(t, geometry(t, id))
		if err := p.CheckDeviceSignature(); err != nil {
			t.Errorf("%v: CheckDeviceSignature() error = %v", id, err)
		}
	}
}

func TestCheckDeviceSignature_Mismatch(t *testing.T) {
	p, _, _ := newProgrammer(t, geometry(t, mcu.ATmega328P), sim.WithSignature([3]byte{0x1E, 0x94, 0x06}))

	err := p.CheckDeviceSignature()
	var mismatch *protocol.SignatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("CheckDeviceSignature() error = %v, want *SignatureMismatchError", err)
	}
	if mismatch.Expected != [3]byte{0x1E, 0x95, 0x0F} || mismatch.Actual != [3]byte{0x1E, 0x94, 0x06} {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestInitializeDevice(t *testing.T) {
	p, _, _ := newProgrammer(t, geometry(t, mcu.ATmega328P))
	if err := p.InitializeDevice(); err != nil {
		t.Fatalf("InitializeDevice() error = %v", err)
	}
}

func TestProgrammingMode(t *testing.T) {
	p, board, _ := newProgrammer(t, geometry(t, mcu.ATmega328P))

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
	g := geometry(t, mcu.ATmega328P)
	p, board, _ := newProgrammer(t, g)

	page := make([]byte, g.Flash.PageSize)
	for i := range page {
		page[i] = byte(i)
	}

	offset := 3 * g.Flash.PageSize
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

func TestCommand_NotInSync(t *testing.T) {
	p, _, _ := newProgrammer(t, geometry(t, mcu.ATmega328P))

	// A request without the trailing EOP byte gets NOSYNC
	_, err := p.command("probe", []byte{CmdEnterProgmode, 0x00}, 0)
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		t.Fatalf("command() error = %v, want *protocol.Error", err)
	}
	if protoErr.Protocol != "STK500v1" {
		t.Errorf("protocol = %q", protoErr.Protocol)
	}
}

func TestSetDeviceRequest(t *testing.T) {
	req := setDeviceRequest(geometry(t, mcu.ATmega328P))

	if len(req) != 22 {
		t.Fatalf("len = %d, want 22", len(req))
	}
	if req[0] != CmdSetDevice || req[21] != SyncCRCEOP {
		t.Errorf("framing = 0x%02X..0x%02X", req[0], req[21])
	}
	if req[1] != 0x86 {
		t.Errorf("device code = 0x%02X, want 0x86", req[1])
	}
	// page size 128, eeprom 1024, flash 32768
	want := []byte{0x00, 0x80, 0x04, 0x00, 0x00, 0x00, 0x80, 0x00}
	if !bytes.Equal(req[13:21], want) {
		t.Errorf("sizes = % X, want % X", req[13:21], want)
	}
}
