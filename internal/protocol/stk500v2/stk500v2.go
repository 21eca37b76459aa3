// Package stk500v2 implements the STK500 version 2 protocol used by the
// Arduino Mega bootloader.
package stk500v2

import (
	"errors"
	"fmt"

	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/protocol"
	"github.com/bigbag/avr-flasher/internal/serial"
)

const name = "STK500v2"

// extendedAddressFlag marks a LOAD_ADDRESS beyond the first 128 KiB.
const extendedAddressFlag = 1 << 31

// Programmer drives an STK500v2 bootloader.
type Programmer struct {
	conn *protocol.Conn
	mcu  mcu.Geometry
	seq  byte
}

// New creates a Programmer talking to geometry over conn.
func New(conn *protocol.Conn, geometry mcu.Geometry) *Programmer {
	return &Programmer{conn: conn, mcu: geometry}
}

// EstablishSync sends SIGN_ON until the bootloader identifies itself.
func (p *Programmer) EstablishSync() error {
	var lastErr error

	for attempt := 1; attempt <= MaxSyncAttempts; attempt++ {
		p.conn.Log.Debug().Int("attempt", attempt).Msg("Sending SIGN_ON")

		if err := p.conn.Flush(); err != nil {
			return fail("sync", "flush failed", err)
		}

		resp, err := p.command("sync", []byte{CmdSignOn}, 3)
		if err != nil {
			if !retryable(err) {
				return err
			}
			lastErr = err
			continue
		}

		id := string(resp[3:])
		if int(resp[2]) != len(id) || !knownSignOn(id) {
			return fail("sync", fmt.Sprintf("unexpected sign-on %q", id), nil)
		}

		p.conn.Log.Debug().Str("programmer", id).Int("attempts", attempt).Msg("In sync")
		return nil
	}

	return fail("sync", fmt.Sprintf("no sync after %d attempts", MaxSyncAttempts), lastErr)
}

// CheckDeviceSignature reads the three signature bytes one at a time.
func (p *Programmer) CheckDeviceSignature() error {
	sig := make([]byte, 3)
	for i := range sig {
		req := []byte{CmdReadSignatureISP, 4, readSignatureCmd, 0x00, byte(i), 0x00}
		resp, err := p.command("read signature", req, 4)
		if err != nil {
			return err
		}
		sig[i] = resp[2]
	}

	p.conn.Log.Debug().Str("signature", mcu.SignatureString(sig)).Msg("Device signature")
	if err := protocol.CheckSignature(p.mcu.Signature, sig); err != nil {
		return fail("read signature", "", err)
	}
	return nil
}

// InitializeDevice logs the bootloader version.
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
	return nil
}

// EnableProgrammingMode enters ISP programming mode.
func (p *Programmer) EnableProgrammingMode() error {
	req := []byte{
		CmdEnterProgmodeISP,
		ispTimeout,
		ispStabDelay,
		ispCmdExeDelay,
		ispSynchLoops,
		ispByteDelay,
		ispPollValue,
		ispPollIndex,
		0xAC, 0x53, 0x00, 0x00, // programming enable instruction
	}
	_, err := p.command("enter programming mode", req, 2)
	return err
}

// LeaveProgrammingMode leaves ISP programming mode.
func (p *Programmer) LeaveProgrammingMode() error {
	_, err := p.command("leave programming mode", []byte{CmdLeaveProgmodeISP, 1, 1}, 2)
	return err
}

// LoadAddress sets the address of the next page transfer.
func (p *Programmer) LoadAddress(mem mcu.Memory, offset int) error {
	addr := uint32(protocol.WordAddress(mem, offset))
	if mem.Type == mcu.Flash && mem.Size > 128*1024 {
		addr |= extendedAddressFlag
	}
	p.conn.Log.Trace().Int("offset", offset).Uint32("address", addr).Msg("Loading address")

	req := []byte{CmdLoadAddress, byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
	_, err := p.command("load address", req, 2)
	return err
}

// ExecuteWritePage writes one page at the loaded address.
func (p *Programmer) ExecuteWritePage(mem mcu.Memory, offset int, data []byte) error {
	req := make([]byte, 0, len(data)+10)
	req = append(req,
		CmdProgramFlashISP,
		byte(len(data)>>8), byte(len(data)),
		flashWriteMode,
		flashWriteDelay,
		flashWriteCmd,
		flashPollCmd,
		flashReadCmd,
		0x00, 0x00, // poll values
	)
	req = append(req, data...)

	_, err := p.command("write page", req, 2)
	return err
}

// ExecuteReadPage reads one page at the loaded address.
func (p *Programmer) ExecuteReadPage(mem mcu.Memory) ([]byte, error) {
	size := mem.PageSize
	req := []byte{CmdReadFlashISP, byte(size >> 8), byte(size), flashReadCmd}

	resp, err := p.command("read page", req, size+3)
	if err != nil {
		return nil, err
	}
	if status := resp[size+2]; status != StatusCmdOK {
		return nil, fail("read page", "trailing status "+StatusMessage(status), nil)
	}
	return resp[2 : size+2], nil
}

func (p *Programmer) getParameter(param byte) (byte, error) {
	resp, err := p.command(fmt.Sprintf("get parameter 0x%02X", param), []byte{CmdGetParameter, param}, 3)
	if err != nil {
		return 0, err
	}
	return resp[2], nil
}

// command sends body in a new message and returns the reply body after
// checking sequence, answer id, status and that it holds at least minLen
// bytes.
func (p *Programmer) command(op string, body []byte, minLen int) ([]byte, error) {
	p.seq++
	req := &Message{Sequence: p.seq, Body: body}
	if err := p.conn.Send(req.Encode()); err != nil {
		return nil, fail(op, "send failed", err)
	}

	resp, err := p.readMessage(op)
	if err != nil {
		return nil, err
	}

	if resp.Sequence != p.seq {
		return nil, fail(op, fmt.Sprintf("sequence mismatch: expected %d, got %d", p.seq, resp.Sequence), nil)
	}
	if len(resp.Body) < 2 || resp.Body[0] != body[0] {
		return nil, fail(op, fmt.Sprintf("unexpected answer % X", resp.Body), nil)
	}
	if status := resp.Body[1]; status != StatusCmdOK {
		return nil, fail(op, fmt.Sprintf("status 0x%02X (%s)", status, StatusMessage(status)), nil)
	}
	if len(resp.Body) < minLen {
		return nil, fail(op, fmt.Sprintf("answer too short: %d bytes", len(resp.Body)), nil)
	}

	return resp.Body, nil
}

func (p *Programmer) readMessage(op string) (*Message, error) {
	header, err := p.conn.Receive(headerSize)
	if err != nil {
		return nil, fail(op, "no response", err)
	}

	size, err := BodySize(header)
	if err != nil {
		return nil, fail(op, "bad frame", err)
	}

	rest, err := p.conn.Receive(size + 1)
	if err != nil {
		return nil, fail(op, "short frame", err)
	}

	msg, err := DecodeMessage(append(header, rest...))
	if err != nil {
		return nil, fail(op, "bad frame", err)
	}
	return msg, nil
}

// retryable reports whether a failed SIGN_ON may be repeated. Timeouts
// and garbled frames are retried, other link failures are not.
func retryable(err error) bool {
	if serial.IsTimeout(err) {
		return true
	}
	var linkErr *serial.LinkError
	return !errors.As(err, &linkErr)
}

func knownSignOn(id string) bool {
	for _, known := range signOnIDs {
		if id == known {
			return true
		}
	}
	return false
}

func fail(op, reason string, err error) error {
	return &protocol.Error{Protocol: name, Operation: op, Reason: reason, Err: err}
}

var _ protocol.Engine = (*Programmer)(nil)
