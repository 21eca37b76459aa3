package sim

// STK500v1 bytes as seen from the bootloader side
const (
	v1EOP     = 0x20
	v1InSync  = 0x14
	v1OK      = 0x10
	v1NoSync  = 0x15
	v1Unknown = 0x12
)

// Values optiboot reports for GET_PARAMETER
var v1Parameters = map[byte]byte{
	0x80: 0x02, // hardware version
	0x81: 0x08, // software major
	0x82: 0x03, // software minor
}

type stk500v1Device struct {
	b *Board
}

func (d *stk500v1Device) handle(in []byte) (int, []byte) {
	n := d.length(in)
	if n == 0 || len(in) < n {
		return 0, nil
	}
	req := in[:n]
	if req[n-1] != v1EOP {
		return n, []byte{v1NoSync}
	}

	switch req[0] {
	case 0x30: // GET_SYNC
		if !d.b.consumeSync() {
			return n, nil
		}
		return n, ok()
	case 0x75: // READ_SIGN
		s := d.b.signature
		return n, ok(s[0], s[1], s[2])
	case 0x41: // GET_PARAMETER
		v, known := v1Parameters[req[1]]
		if !known {
			return n, []byte{v1InSync, v1Unknown}
		}
		return n, ok(v)
	case 0x42: // SET_DEVICE
		return n, ok()
	case 0x50: // ENTER_PROGMODE
		d.b.progMode = true
		return n, ok()
	case 0x51: // LEAVE_PROGMODE
		if d.b.refuseLeave {
			return n, []byte{v1InSync, v1Unknown}
		}
		d.b.progMode = false
		return n, ok()
	case 0x55: // LOAD_ADDRESS, little endian word address
		d.b.address = (int(req[1]) | int(req[2])<<8) * 2
		return n, ok()
	case 0x64: // PROG_PAGE
		d.b.writePage(req[4 : n-1])
		return n, ok()
	case 0x74: // READ_PAGE
		size := int(req[1])<<8 | int(req[2])
		return n, ok(d.b.readPage(size)...)
	default:
		return n, []byte{v1InSync, v1Unknown}
	}
}

// length returns the size of the request starting at in[0], or 0 if more
// bytes are needed to tell.
func (d *stk500v1Device) length(in []byte) int {
	switch in[0] {
	case 0x30, 0x75, 0x50, 0x51:
		return 2
	case 0x41:
		return 3
	case 0x55:
		return 4
	case 0x74:
		return 5
	case 0x42:
		return 22
	case 0x64:
		if len(in) < 3 {
			return 0
		}
		return 5 + (int(in[1])<<8 | int(in[2]))
	default:
		return 1
	}
}

func ok(payload ...byte) []byte {
	reply := make([]byte, 0, len(payload)+2)
	reply = append(reply, v1InSync)
	reply = append(reply, payload...)
	return append(reply, v1OK)
}
