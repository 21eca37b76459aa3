package memory

import (
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
)

// Erased is the value of an unprogrammed flash byte.
const Erased = 0xFF

// Cell is one byte of the image and whether the input set it.
type Cell struct {
	Value    byte
	Modified bool
}

// Image is a byte-addressed memory image. Cells that the input did not
// set hold Erased and are not modified.
type Image struct {
	Cells []Cell
}

// New returns an erased image of the given size.
func New(size int) *Image {
	cells := make([]Cell, size)
	for i := range cells {
		cells[i].Value = Erased
	}
	return &Image{Cells: cells}
}

// Size returns the number of cells.
func (m *Image) Size() int {
	return len(m.Cells)
}

// Set writes data at offset and marks the cells modified.
func (m *Image) Set(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(m.Cells) {
		return fmt.Errorf("data at 0x%X (%d bytes) exceeds memory size %d", offset, len(data), len(m.Cells))
	}
	for i, b := range data {
		m.Cells[offset+i] = Cell{Value: b, Modified: true}
	}
	return nil
}

// HighestModifiedOffset returns the largest modified index, or -1 if no
// cell is modified.
func (m *Image) HighestModifiedOffset() int {
	for i := len(m.Cells) - 1; i >= 0; i-- {
		if m.Cells[i].Modified {
			return i
		}
	}
	return -1
}

// Page returns the values of up to size cells starting at offset.
func (m *Image) Page(offset, size int) []byte {
	end := offset + size
	if end > len(m.Cells) {
		end = len(m.Cells)
	}
	if offset >= end {
		return nil
	}
	page := make([]byte, end-offset)
	for i := range page {
		page[i] = m.Cells[offset+i].Value
	}
	return page
}

// PageModified reports whether any cell in [offset, offset+size) is modified.
func (m *Image) PageModified(offset, size int) bool {
	end := offset + size
	if end > len(m.Cells) {
		end = len(m.Cells)
	}
	for i := offset; i < end; i++ {
		if m.Cells[i].Modified {
			return true
		}
	}
	return false
}

// ModifiedBytes counts modified cells.
func (m *Image) ModifiedBytes() int {
	n := 0
	for _, c := range m.Cells {
		if c.Modified {
			n++
		}
	}
	return n
}

// ParseHex reads Intel HEX records into an image of the given size.
// Records that fall outside the image are rejected.
func ParseHex(r io.Reader, size int) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("failed to parse hex: %w", err)
	}

	img := New(size)
	for _, seg := range mem.GetDataSegments() {
		if err := img.Set(int(seg.Address), seg.Data); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// LoadHex reads an Intel HEX file into an image of the given size.
func LoadHex(path string, size int) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseHex(file, size)
}
