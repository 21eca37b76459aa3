// Package stk500v1 implements the STK500 version 1 protocol spoken by
// optiboot and the classic Arduino bootloaders.
package stk500v1

import (
	"fmt"

	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/protocol"
	"github.com/bigbag/avr-flasher/internal/serial"
)

const name = "STK500v1"

// Programmer drives an STK500v1 bootloader.
type Programmer struct {
	conn *protocol.Conn
	mcu  mcu.Geometry
}

// New creates a Programmer talking to geometry over conn.
func New(conn *protocol.Conn, geometry mcu.Geometry) *Programmer {
	return &Programmer{conn: conn, mcu: geometry}
}

// EstablishSync sends GET_SYNC until the bootloader answers in sync.
func (p *Programmer) EstablishSync() error {
	var lastErr error

	for attempt := 1; attempt <= MaxSyncAttempts; attempt++ {
		p.conn.Log.Debug().Int("attempt", attempt).Msg("Sending GET_SYNC")

		if err := p.conn.Flush(); err != nil {
			return fail("sync", "flush failed", err)
		}
		if err := p.conn.Send([]byte{CmdGetSync, SyncCRCEOP}); err != nil {
			return fail("sync", "send failed", err)
		}

		resp, err := p.conn.Receive(2)
		if err != nil {
			if !serial.IsTimeout(err) {
				return fail("sync", "receive failed", err)
			}
			lastErr = err
			continue
		}

		if resp[0] == RespInSync && resp[1] == RespOK {
			p.conn.Log.Debug().Int("attempts", attempt).Msg("In sync")
			return nil
		}
		lastErr = fmt.Errorf("unexpected reply % X", resp)
	}

	return fail("sync", fmt.Sprintf("no sync after %d attempts", MaxSyncAttempts), lastErr)
}

// CheckDeviceSignature reads the signature and compares it with the MCU's.
func (p *Programmer) CheckDeviceSignature() error {
	sig, err := p.command("read signature", []byte{CmdReadSignature, SyncCRCEOP}, 3)
	if err != nil {
		return err
	}

	p.conn.Log.Debug().Str("signature", mcu.SignatureString(sig)).Msg("Device signature")
	if err := protocol.CheckSignature(p.mcu.Signature, sig); err != nil {
		return fail("read signature", "", err)
	}
	return nil
}

// InitializeDevice logs the bootloader version and sends the device
// parameters.
func (p *Programmer) InitializeDevice() error {
	hw, err := p.getParameter(ParamHWVersion)
	if err != nil {
		return err
	}
	major, err := p.getParameter(ParamSWMajor)
	if err != nil {
		return err
	}
	minor, err := p.getParameter(ParamSWMinor)
	if err != nil {
		return err
	}

	p.conn.Log.Debug().
		Uint8("hardware", hw).
		Str("software", fmt.Sprintf("%d.%d", major, minor)).
		Msg("Bootloader version")

	_, err = p.command("set device", setDeviceRequest(p.mcu), 0)
	return err
}

// EnableProgrammingMode enters programming mode.
func (p *Programmer) EnableProgrammingMode() error {
	_, err := p.command("enter programming mode", []byte{CmdEnterProgmode, SyncCRCEOP}, 0)
	return err
}

// LeaveProgrammingMode leaves programming mode.
func (p *Programmer) LeaveProgrammingMode() error {
	_, err := p.command("leave programming mode", []byte{CmdLeaveProgmode, SyncCRCEOP}, 0)
	return err
}

// LoadAddress sets the address of the next page transfer.
func (p *Programmer) LoadAddress(mem mcu.Memory, offset int) error {
	addr := protocol.WordAddress(mem, offset)
	p.conn.Log.Trace().Int("offset", offset).Int("address", addr).Msg("Loading address")

	_, err := p.command("load address", []byte{CmdLoadAddress, byte(addr), byte(addr >> 8), SyncCRCEOP}, 0)
	return err
}

// ExecuteWritePage writes one page at the loaded address.
func (p *Programmer) ExecuteWritePage(mem mcu.Memory, offset int, data []byte) error {
	req := make([]byte, 0, len(data)+5)
	req = append(req, CmdProgramPage, byte(len(data)>>8), byte(len(data)), byte(mem.Type))
	req = append(req, data...)
	req = append(req, SyncCRCEOP)

	_, err := p.command("write page", req, 0)
	return err
}

// ExecuteReadPage reads one page at the loaded address.
func (p *Programmer) ExecuteReadPage(mem mcu.Memory) ([]byte, error) {
	size := mem.PageSize
	req := []byte{CmdReadPage, byte(size >> 8), byte(size), byte(mem.Type), SyncCRCEOP}
	return p.command("read page", req, size)
}

func (p *Programmer) getParameter(param byte) (byte, error) {
	v, err := p.command(fmt.Sprintf("get parameter 0x%02X", param), []byte{CmdGetParameter, param, SyncCRCEOP}, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// command sends req and expects INSYNC, n bytes of payload and OK.
func (p *Programmer) command(op string, req []byte, n int) ([]byte, error) {
	if err := p.conn.Send(req); err != nil {
		return nil, fail(op, "send failed", err)
	}

	b, err := p.conn.ReceiveByte()
	if err != nil {
		return nil, fail(op, "no response", err)
	}
	if b != RespInSync {
		return nil, fail(op, fmt.Sprintf("expected INSYNC, got 0x%02X", b), nil)
	}

	payload, err := p.conn.Receive(n)
	if err != nil {
		return nil, fail(op, "short response", err)
	}

	b, err = p.conn.ReceiveByte()
	if err != nil {
		return nil, fail(op, "no status", err)
	}
	if b != RespOK {
		return nil, fail(op, fmt.Sprintf("expected OK, got 0x%02X", b), nil)
	}

	return payload, nil
}

func setDeviceRequest(g mcu.Geometry) []byte {
	f, e := g.Flash, g.EEPROM
	return []byte{
		CmdSetDevice,
		g.DeviceCode,
		g.DeviceRevision,
		g.ProgType,
		g.ParallelMode,
		g.Polling,
		g.SelfTimed,
		g.LockBytes,
		g.FuseBytes,
		f.PollVal1,
		f.PollVal2,
		e.PollVal1,
		e.PollVal2,
		byte(f.PageSize >> 8), byte(f.PageSize),
		byte(e.Size >> 8), byte(e.Size),
		byte(f.Size >> 24), byte(f.Size >> 16), byte(f.Size >> 8), byte(f.Size),
		SyncCRCEOP,
	}
}

func fail(op, reason string, err error) error {
	return &protocol.Error{Protocol: name, Operation: op, Reason: reason, Err: err}
}

var _ protocol.Engine = (*Programmer)(nil)
