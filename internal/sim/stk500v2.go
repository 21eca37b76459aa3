package sim

const (
	v2Start = 0x1B
	v2Token = 0x0E

	v2StatusOK     = 0x00
	v2StatusFailed = 0xC0
	v2UnknownCmd   = 0xC9
)

// Values the Mega2560 bootloader reports for CMD_GET_PARAMETER
var v2Parameters = map[byte]byte{
	0x90: 0x0F, // hardware version
	0x91: 0x02, // software major
	0x92: 0x0A, // software minor
}

type stk500v2Device struct {
	b *Board
}

func (d *stk500v2Device) handle(in []byte) (int, []byte) {
	if in[0] != v2Start {
		return 1, nil
	}
	if len(in) < 5 {
		return 0, nil
	}

	size := int(in[2])<<8 | int(in[3])
	n := 5 + size + 1
	if len(in) < n {
		return 0, nil
	}

	frame := in[:n]
	if frame[4] != v2Token || v2Checksum(frame[:n-1]) != frame[n-1] {
		return n, nil
	}

	seq := frame[1]
	body := frame[5 : n-1]
	if len(body) == 0 {
		return n, nil
	}
	reply := d.command(body)
	if reply == nil {
		return n, nil
	}
	return n, v2Frame(seq, reply)
}

func (d *stk500v2Device) command(body []byte) []byte {
	cmd := body[0]
	switch cmd {
	case 0x01: // CMD_SIGN_ON
		if !d.b.consumeSync() {
			return nil
		}
		id := "AVRISP_2"
		return append([]byte{cmd, v2StatusOK, byte(len(id))}, id...)
	case 0x03: // CMD_GET_PARAMETER
		v, known := v2Parameters[body[1]]
		if !known {
			return []byte{cmd, v2StatusFailed}
		}
		return []byte{cmd, v2StatusOK, v}
	case 0x1B: // CMD_READ_SIGNATURE_ISP
		i := int(body[4])
		if i > 2 {
			return []byte{cmd, v2StatusFailed}
		}
		return []byte{cmd, v2StatusOK, d.b.signature[i], v2StatusOK}
	case 0x10: // CMD_ENTER_PROGMODE_ISP
		d.b.progMode = true
		return []byte{cmd, v2StatusOK}
	case 0x11: // CMD_LEAVE_PROGMODE_ISP
		if d.b.refuseLeave {
			return []byte{cmd, v2StatusFailed}
		}
		d.b.progMode = false
		return []byte{cmd, v2StatusOK}
	case 0x06: // CMD_LOAD_ADDRESS, big endian word address, bit 31 extends
		addr := int(body[1]&0x7F)<<24 | int(body[2])<<16 | int(body[3])<<8 | int(body[4])
		d.b.address = addr * 2
		return []byte{cmd, v2StatusOK}
	case 0x13: // CMD_PROGRAM_FLASH_ISP
		size := int(body[1])<<8 | int(body[2])
		if len(body) != 10+size {
			return []byte{cmd, v2StatusFailed}
		}
		d.b.writePage(body[10:])
		return []byte{cmd, v2StatusOK}
	case 0x14: // CMD_READ_FLASH_ISP
		size := int(body[1])<<8 | int(body[2])
		reply := append([]byte{cmd, v2StatusOK}, d.b.readPage(size)...)
		return append(reply, v2StatusOK)
	default:
		return []byte{cmd, v2UnknownCmd}
	}
}

func v2Frame(seq byte, body []byte) []byte {
	frame := []byte{v2Start, seq, byte(len(body) >> 8), byte(len(body)), v2Token}
	frame = append(frame, body...)
	return append(frame, v2Checksum(frame))
}

func v2Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}
