package mcu

import (
	"fmt"
	"strings"
)

// ID identifies a supported microcontroller.
type ID int

// Supported MCUs
const (
	ATmega168 ID = iota + 1
	ATmega328P
	ATmega32U4
	ATmega1284
	ATmega2560
)

// MemoryType selects a memory region on the device.
type MemoryType byte

// Memory types, encoded the way STK500 and AVR109 bootloaders expect them.
const (
	Flash  MemoryType = 'F'
	EEPROM MemoryType = 'E'
)

// Memory describes one memory region of an MCU.
type Memory struct {
	Type     MemoryType
	Size     int
	PageSize int
	PollVal1 byte
	PollVal2 byte
}

// Geometry is the immutable description of an MCU.
type Geometry struct {
	ID        ID
	Name      string
	Signature [3]byte
	Flash     Memory
	EEPROM    Memory

	// STK500 SET_DEVICE parameters
	DeviceCode     byte
	DeviceRevision byte
	ProgType       byte
	ParallelMode   byte
	Polling        byte
	SelfTimed      byte
	LockBytes      byte
	FuseBytes      byte
}

var geometries = map[ID]Geometry{
	ATmega168: {
		ID:        ATmega168,
		Name:      "ATmega168",
		Signature: [3]byte{0x1E, 0x94, 0x06},
		Flash:     Memory{Type: Flash, Size: 16 * 1024, PageSize: 128, PollVal1: 0xFF, PollVal2: 0xFF},
		EEPROM:    Memory{Type: EEPROM, Size: 512, PageSize: 4, PollVal1: 0xFF, PollVal2: 0xFF},

		DeviceCode:   0x86,
		ParallelMode: 1,
		Polling:      1,
		SelfTimed:    1,
		LockBytes:    1,
		FuseBytes:    3,
	},
	ATmega328P: {
		ID:        ATmega328P,
		Name:      "ATmega328P",
		Signature: [3]byte{0x1E, 0x95, 0x0F},
		Flash:     Memory{Type: Flash, Size: 32 * 1024, PageSize: 128, PollVal1: 0xFF, PollVal2: 0xFF},
		EEPROM:    Memory{Type: EEPROM, Size: 1024, PageSize: 4, PollVal1: 0xFF, PollVal2: 0xFF},

		DeviceCode:   0x86,
		ParallelMode: 1,
		Polling:      1,
		SelfTimed:    1,
		LockBytes:    1,
		FuseBytes:    3,
	},
	ATmega32U4: {
		ID:        ATmega32U4,
		Name:      "ATmega32U4",
		Signature: [3]byte{0x1E, 0x95, 0x87},
		Flash:     Memory{Type: Flash, Size: 32 * 1024, PageSize: 128, PollVal1: 0xFF, PollVal2: 0xFF},
		EEPROM:    Memory{Type: EEPROM, Size: 1024, PageSize: 4, PollVal1: 0xFF, PollVal2: 0xFF},

		DeviceCode: 0x44,
	},
	ATmega1284: {
		ID:        ATmega1284,
		Name:      "ATmega1284",
		Signature: [3]byte{0x1E, 0x97, 0x05},
		Flash:     Memory{Type: Flash, Size: 128 * 1024, PageSize: 256, PollVal1: 0xFF, PollVal2: 0xFF},
		EEPROM:    Memory{Type: EEPROM, Size: 4096, PageSize: 8, PollVal1: 0xFF, PollVal2: 0xFF},

		DeviceCode:   0x82,
		ParallelMode: 1,
		Polling:      1,
		SelfTimed:    1,
		LockBytes:    1,
		FuseBytes:    3,
	},
	ATmega2560: {
		ID:        ATmega2560,
		Name:      "ATmega2560",
		Signature: [3]byte{0x1E, 0x98, 0x01},
		Flash:     Memory{Type: Flash, Size: 256 * 1024, PageSize: 256, PollVal1: 0xFF, PollVal2: 0xFF},
		EEPROM:    Memory{Type: EEPROM, Size: 4096, PageSize: 8, PollVal1: 0xFF, PollVal2: 0xFF},

		DeviceCode:   0xB2,
		ParallelMode: 1,
		Polling:      1,
		SelfTimed:    1,
		LockBytes:    1,
		FuseBytes:    3,
	},
}

// Lookup returns the geometry for a supported MCU.
func Lookup(id ID) (Geometry, bool) {
	g, ok := geometries[id]
	return g, ok
}

// All returns every supported MCU ID in declaration order.
func All() []ID {
	return []ID{ATmega168, ATmega328P, ATmega32U4, ATmega1284, ATmega2560}
}

// String returns the MCU name.
func (id ID) String() string {
	if g, ok := geometries[id]; ok {
		return g.Name
	}
	return fmt.Sprintf("MCU(%d)", int(id))
}

// ParseID resolves an MCU name case-insensitively.
func ParseID(name string) (ID, error) {
	name = strings.TrimSpace(name)
	for _, id := range All() {
		if strings.EqualFold(geometries[id].Name, name) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unrecognized MCU: %q", name)
}

// SignatureString formats a device signature the way datasheets print it.
func SignatureString(sig []byte) string {
	parts := make([]string, len(sig))
	for i, b := range sig {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, "-")
}
