package protocol

import "github.com/bigbag/avr-flasher/internal/mcu"

// Engine speaks one bootloader protocol over an open link.
//
// The caller drives the operations in this order:
// EstablishSync, CheckDeviceSignature, InitializeDevice,
// EnableProgrammingMode, any number of LoadAddress followed by
// ExecuteWritePage or ExecuteReadPage, then LeaveProgrammingMode.
// Every page transfer must be preceded by LoadAddress for the same offset.
type Engine interface {
	EstablishSync() error
	CheckDeviceSignature() error
	InitializeDevice() error
	EnableProgrammingMode() error
	LeaveProgrammingMode() error

	// LoadAddress sets the byte offset of the next page transfer.
	LoadAddress(mem mcu.Memory, offset int) error
	ExecuteWritePage(mem mcu.Memory, offset int, data []byte) error
	// ExecuteReadPage reads one page at the last loaded address.
	ExecuteReadPage(mem mcu.Memory) ([]byte, error)
}

// WordAddress converts a flash byte offset into the word address that
// AVR bootloaders expect.
func WordAddress(mem mcu.Memory, offset int) int {
	if mem.Type == mcu.Flash {
		return offset >> 1
	}
	return offset
}
