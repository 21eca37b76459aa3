package sim

const avr109CR = '\r'

type avr109Device struct {
	b *Board
}

func (d *avr109Device) handle(in []byte) (int, []byte) {
	switch in[0] {
	case 'S': // software identifier
		return 1, []byte("CATERIN")
	case 'V': // software version
		return 1, []byte("10")
	case 'p': // programmer type
		return 1, []byte{'S'}
	case 'a': // auto-increment support
		return 1, []byte{'Y'}
	case 'b': // block mode support and buffer size
		size := d.b.geometry.Flash.PageSize
		return 1, []byte{'Y', byte(size >> 8), byte(size)}
	case 't': // supported device codes
		return 1, []byte{d.b.geometry.DeviceCode, 0x00}
	case 's': // signature, last byte first
		s := d.b.signature
		return 1, []byte{s[2], s[1], s[0]}
	case 'T': // select device type
		if len(in) < 2 {
			return 0, nil
		}
		if in[1] != d.b.geometry.DeviceCode {
			return 2, []byte{'?'}
		}
		return 2, []byte{avr109CR}
	case 'P': // enter programming mode
		d.b.progMode = true
		return 1, []byte{avr109CR}
	case 'L': // leave programming mode
		if d.b.refuseLeave {
			return 1, []byte{'?'}
		}
		d.b.progMode = false
		return 1, []byte{avr109CR}
	case 'E': // exit bootloader
		return 1, []byte{avr109CR}
	case 'A': // set word address, big endian
		if len(in) < 3 {
			return 0, nil
		}
		d.b.address = (int(in[1])<<8 | int(in[2])) * 2
		return 3, []byte{avr109CR}
	case 'B': // block write
		if len(in) < 4 {
			return 0, nil
		}
		size := int(in[1])<<8 | int(in[2])
		n := 4 + size
		if len(in) < n {
			return 0, nil
		}
		if in[3] != 'F' {
			return n, []byte{'?'}
		}
		d.b.writePage(in[4:n])
		return n, []byte{avr109CR}
	case 'g': // block read
		if len(in) < 4 {
			return 0, nil
		}
		size := int(in[1])<<8 | int(in[2])
		if in[3] != 'F' {
			return 4, []byte{'?'}
		}
		return 4, d.b.readPage(size)
	case 0x1B: // escape, ignored
		return 1, nil
	default:
		return 1, []byte{'?'}
	}
}
