// Package avr109 implements the AVR109 (butterfly) protocol spoken by the
// Caterina bootloader of ATmega32U4 boards.
package avr109

import (
	"fmt"

	"github.com/bigbag/avr-flasher/internal/mcu"
	"github.com/bigbag/avr-flasher/internal/protocol"
)

const name = "AVR109"

// Programmer drives an AVR109 bootloader.
type Programmer struct {
	conn *protocol.Conn
	mcu  mcu.Geometry

	// bufferSize is the block size reported by the bootloader
	bufferSize int
}

// New creates a Programmer talking to geometry over conn.
func New(conn *protocol.Conn, geometry mcu.Geometry) *Programmer {
	return &Programmer{conn: conn, mcu: geometry}
}

// EstablishSync does nothing: AVR109 has no sync handshake.
func (p *Programmer) EstablishSync() error {
	return nil
}

// CheckDeviceSignature reads the signature, which arrives last byte first.
func (p *Programmer) CheckDeviceSignature() error {
	if err := p.send("read signature", CmdReadSignature); err != nil {
		return err
	}
	resp, err := p.receive("read signature", 3)
	if err != nil {
		return err
	}

	sig := []byte{resp[2], resp[1], resp[0]}
	p.conn.Log.Debug().Str("signature", mcu.SignatureString(sig)).Msg("Device signature")
	if err := protocol.CheckSignature(p.mcu.Signature, sig); err != nil {
		return fail("read signature", "", err)
	}
	return nil
}

// InitializeDevice queries the bootloader capabilities and selects the
// device type.
func (p *Programmer) InitializeDevice() error {
	id, err := p.query("software id", CmdSoftwareID, 7)
	if err != nil {
		return err
	}
	version, err := p.query("software version", CmdSoftwareVersion, 2)
	if err != nil {
		return err
	}
	progType, err := p.query("programmer type", CmdProgrammerType, 1)
	if err != nil {
		return err
	}

	p.conn.Log.Debug().
		Str("id", string(id)).
		Str("version", fmt.Sprintf("%c.%c", version[0], version[1])).
		Str("type", string(progType)).
		Msg("Bootloader version")

	autoInc, err := p.query("auto increment", CmdAutoIncrement, 1)
	if err != nil {
		return err
	}
	if autoInc[0] != RespYes {
		return fail("initialize", "bootloader does not support auto-increment", nil)
	}

	block, err := p.query("block support", CmdBlockSupport, 3)
	if err != nil {
		return err
	}
	if block[0] != RespYes {
		return fail("initialize", "bootloader does not support block mode", nil)
	}
	p.bufferSize = int(block[1])<<8 | int(block[2])
	p.conn.Log.Debug().Int("buffer", p.bufferSize).Msg("Block mode supported")

	codes, err := p.supportedDevices()
	if err != nil {
		return err
	}
	if !containsCode(codes, p.mcu.DeviceCode) {
		return fail("initialize", fmt.Sprintf("device code 0x%02X not in supported list % X", p.mcu.DeviceCode, codes), nil)
	}

	return p.command("select device", CmdSelectDevice, p.mcu.DeviceCode)
}

// EnableProgrammingMode enters programming mode.
func (p *Programmer) EnableProgrammingMode() error {
	return p.command("enter programming mode", CmdEnterProgmode)
}

// LeaveProgrammingMode leaves programming mode and exits the bootloader,
// which starts the new sketch.
func (p *Programmer) LeaveProgrammingMode() error {
	if err := p.command("leave programming mode", CmdLeaveProgmode); err != nil {
		return err
	}
	return p.command("exit bootloader", CmdExitBootloader)
}

// LoadAddress sets the address of the next page transfer.
func (p *Programmer) LoadAddress(mem mcu.Memory, offset int) error {
	addr := protocol.WordAddress(mem, offset)
	p.conn.Log.Trace().Int("offset", offset).Int("address", addr).Msg("Loading address")

	return p.command("load address", CmdSetAddress, byte(addr>>8), byte(addr))
}

// ExecuteWritePage writes one block at the loaded address.
func (p *Programmer) ExecuteWritePage(mem mcu.Memory, offset int, data []byte) error {
	if p.bufferSize > 0 && len(data) > p.bufferSize {
		return fail("write page", fmt.Sprintf("page of %d bytes exceeds bootloader buffer of %d", len(data), p.bufferSize), nil)
	}

	req := make([]byte, 0, len(data)+4)
	req = append(req, byte(len(data)>>8), byte(len(data)), byte(mem.Type))
	req = append(req, data...)
	return p.command("write page", CmdBlockWrite, req...)
}

// ExecuteReadPage reads one block at the loaded address.
func (p *Programmer) ExecuteReadPage(mem mcu.Memory) ([]byte, error) {
	size := mem.PageSize
	if err := p.send("read page", CmdBlockRead, byte(size>>8), byte(size), byte(mem.Type)); err != nil {
		return nil, err
	}
	return p.receive("read page", size)
}

func (p *Programmer) supportedDevices() ([]byte, error) {
	if err := p.send("supported devices", CmdSupportedDevices); err != nil {
		return nil, err
	}

	var codes []byte
	for len(codes) < maxDeviceCodes {
		b, err := p.conn.ReceiveByte()
		if err != nil {
			return nil, fail("supported devices", "no response", err)
		}
		if b == 0x00 {
			return codes, nil
		}
		codes = append(codes, b)
	}
	return nil, fail("supported devices", "device list not terminated", nil)
}

// query sends a single byte command and returns its n byte answer.
func (p *Programmer) query(op string, cmd byte, n int) ([]byte, error) {
	if err := p.send(op, cmd); err != nil {
		return nil, err
	}
	return p.receive(op, n)
}

// command sends cmd with args and expects a carriage return.
func (p *Programmer) command(op string, cmd byte, args ...byte) error {
	if err := p.send(op, cmd, args...); err != nil {
		return err
	}

	b, err := p.conn.ReceiveByte()
	if err != nil {
		return fail(op, "no response", err)
	}
	if b != RespCR {
		return fail(op, fmt.Sprintf("expected CR, got 0x%02X", b), nil)
	}
	return nil
}

func (p *Programmer) send(op string, cmd byte, args ...byte) error {
	req := append([]byte{cmd}, args...)
	if err := p.conn.Send(req); err != nil {
		return fail(op, "send failed", err)
	}
	return nil
}

func (p *Programmer) receive(op string, n int) ([]byte, error) {
	resp, err := p.conn.Receive(n)
	if err != nil {
		return nil, fail(op, "no response", err)
	}
	return resp, nil
}

func containsCode(codes []byte, code byte) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func fail(op, reason string, err error) error {
	return &protocol.Error{Protocol: name, Operation: op, Reason: reason, Err: err}
}

var _ protocol.Engine = (*Programmer)(nil)
