package flasher

import "fmt"

// VerificationError indicates that a page read back from the device
// differs from the image.
type VerificationError struct {
	Offset   int
	Expected []byte
	Actual   []byte
}

func (e *VerificationError) Error() string {
	i := firstDifference(e.Expected, e.Actual)
	var want, got string
	if i < len(e.Expected) {
		want = fmt.Sprintf("0x%02X", e.Expected[i])
	} else {
		want = "end of page"
	}
	if i < len(e.Actual) {
		got = fmt.Sprintf("0x%02X", e.Actual[i])
	} else {
		got = "end of page"
	}
	return fmt.Sprintf("verification failed at 0x%05X: expected %s, read %s",
		e.Offset+i, want, got)
}

func firstDifference(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
