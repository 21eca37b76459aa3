package serial

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLinkError_Format(t *testing.T) {
	err := &LinkError{Op: "open", Port: "/dev/ttyACM0", Err: errors.New("busy")}
	if got := err.Error(); got != "open /dev/ttyACM0: busy" {
		t.Errorf("Error() = %q", got)
	}

	err = &LinkError{Op: "list ports", Err: errors.New("denied")}
	if got := err.Error(); got != "list ports: denied" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLinkError_Timeout(t *testing.T) {
	err := error(&LinkError{Op: "read", Port: "COM3", Err: ErrTimeout})

	if !IsTimeout(err) {
		t.Error("IsTimeout() = false, want true")
	}

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || !linkErr.Timeout() {
		t.Error("LinkError.Timeout() = false, want true")
	}

	other := &LinkError{Op: "write", Port: "COM3", Err: errors.New("io")}
	if other.Timeout() || IsTimeout(other) {
		t.Error("non-timeout error reported as timeout")
	}
}

func TestIsPortGone_PlainError(t *testing.T) {
	if IsPortGone(errors.New("boom")) {
		t.Error("IsPortGone(plain error) = true, want false")
	}
}

func TestPort_ClosedOperations(t *testing.T) {
	p := OSDriver{}.NewLink("/dev/does-not-exist", Config{BaudRate: 115200, ReadTimeout: time.Second})

	if p.IsOpen() {
		t.Fatal("new link should be closed")
	}
	if p.Name() != "/dev/does-not-exist" {
		t.Errorf("Name() = %q", p.Name())
	}

	checks := []struct {
		name string
		err  error
	}{
		{"ReadFull", p.ReadFull(make([]byte, 1))},
		{"Flush", p.Flush()},
		{"SetDTR", p.SetDTR(true)},
		{"SetRTS", p.SetRTS(true)},
	}
	if _, err := p.Write([]byte{0x30}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write() error = %v, want ErrNotOpen", err)
	}
	for _, c := range checks {
		if !errors.Is(c.err, ErrNotOpen) {
			t.Errorf("%s() error = %v, want ErrNotOpen", c.name, c.err)
		}
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close() on closed link = %v, want nil", err)
	}
}

func TestPort_OpenMissing(t *testing.T) {
	p := OSDriver{}.NewLink("/dev/does-not-exist", Config{BaudRate: 115200})
	err := p.Open()
	if err == nil {
		p.Close()
		t.Skip("port unexpectedly exists")
	}

	var linkErr *LinkError
	if !errors.As(err, &linkErr) || linkErr.Op != "open" {
		t.Errorf("Open() error = %v, want open LinkError", err)
	}
	if !strings.Contains(err.Error(), "/dev/does-not-exist") {
		t.Errorf("error %q should name the port", err)
	}
}
