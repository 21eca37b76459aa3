package mcu

import "testing"

func TestLookup_KnownMCUs(t *testing.T) {
	tests := []struct {
		id        ID
		flashSize int
		pageSize  int
		signature [3]byte
	}{
		{ATmega168, 16384, 128, [3]byte{0x1E, 0x94, 0x06}},
		{ATmega328P, 32768, 128, [3]byte{0x1E, 0x95, 0x0F}},
		{ATmega32U4, 32768, 128, [3]byte{0x1E, 0x95, 0x87}},
		{ATmega1284, 131072, 256, [3]byte{0x1E, 0x97, 0x05}},
		{ATmega2560, 262144, 256, [3]byte{0x1E, 0x98, 0x01}},
	}

	for _, tc := range tests {
		g, ok := Lookup(tc.id)
		if !ok {
			t.Fatalf("Lookup(%v) not found", tc.id)
		}
		if g.Flash.Size != tc.flashSize {
			t.Errorf("%v flash size = %d, want %d", tc.id, g.Flash.Size, tc.flashSize)
		}
		if g.Flash.PageSize != tc.pageSize {
			t.Errorf("%v page size = %d, want %d", tc.id, g.Flash.PageSize, tc.pageSize)
		}
		if g.Signature != tc.signature {
			t.Errorf("%v signature = %v, want %v", tc.id, g.Signature, tc.signature)
		}
		if g.Flash.Type != Flash {
			t.Errorf("%v flash type = %c, want F", tc.id, g.Flash.Type)
		}
		if g.Flash.Size%g.Flash.PageSize != 0 {
			t.Errorf("%v flash size %d not a multiple of page size %d", tc.id, g.Flash.Size, g.Flash.PageSize)
		}
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, ok := Lookup(ID(99)); ok {
		t.Error("Lookup(99) should fail")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name string
		want ID
	}{
		{"ATmega328P", ATmega328P},
		{"atmega328p", ATmega328P},
		{" ATMEGA2560 ", ATmega2560},
		{"ATmega32U4", ATmega32U4},
	}

	for _, tc := range tests {
		got, err := ParseID(tc.name)
		if err != nil {
			t.Errorf("ParseID(%q) error = %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseID(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}

	if _, err := ParseID("ATtiny85"); err == nil {
		t.Error("ParseID(ATtiny85) should fail")
	}
}

func TestIDString(t *testing.T) {
	if got := ATmega1284.String(); got != "ATmega1284" {
		t.Errorf("String() = %q, want ATmega1284", got)
	}
	if got := ID(42).String(); got != "MCU(42)" {
		t.Errorf("String() = %q, want MCU(42)", got)
	}
}

func TestSignatureString(t *testing.T) {
	if got := SignatureString([]byte{0x1E, 0x95, 0x0F}); got != "1E-95-0F" {
		t.Errorf("SignatureString() = %q, want 1E-95-0F", got)
	}
}
