package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResetKind selects a board reset strategy.
type ResetKind int

// Reset strategies
const (
	ResetNone ResetKind = iota
	Reset1200bps
	ResetDTR
	ResetDTRRTS
)

// ResetDescriptor is a parsed reset behavior.
type ResetDescriptor struct {
	Kind   ResetKind
	Invert bool
	Wait1  time.Duration
	Wait2  time.Duration
}

// ParseResetDescriptor parses the compact reset notation used by the board
// catalog:
//
//	""                         no reset
//	"1200bps"                  1200 baud touch
//	"DTR;<true|false>"         DTR toggle, optionally inverted
//	"DTR-RTS;<w1>;<w2>[;<b>]"  DTR+RTS toggle holding w1 then w2 milliseconds
func ParseResetDescriptor(s string) (ResetDescriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ResetDescriptor{Kind: ResetNone}, nil
	}
	if strings.EqualFold(s, "1200bps") {
		return ResetDescriptor{Kind: Reset1200bps}, nil
	}

	parts := strings.Split(s, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) == 2 && strings.EqualFold(parts[0], "DTR") {
		return ResetDescriptor{Kind: ResetDTR, Invert: strings.EqualFold(parts[1], "true")}, nil
	}

	if len(parts) < 3 || len(parts) > 4 {
		return ResetDescriptor{}, Errorf("unexpected reset format (%d parts to %q)", len(parts), s)
	}
	if !strings.EqualFold(parts[0], "DTR-RTS") {
		return ResetDescriptor{}, Errorf("unrecognized reset behavior %q", s)
	}

	wait1, err := parseWait(parts[1])
	if err != nil {
		return ResetDescriptor{}, Errorf("unrecognized wait (1) in DTR-RTS: %q", parts[1])
	}
	wait2, err := parseWait(parts[2])
	if err != nil {
		return ResetDescriptor{}, Errorf("unrecognized wait (2) in DTR-RTS: %q", parts[2])
	}

	return ResetDescriptor{
		Kind:   ResetDTRRTS,
		Wait1:  wait1,
		Wait2:  wait2,
		Invert: len(parts) == 4 && strings.EqualFold(parts[3], "true"),
	}, nil
}

func parseWait(s string) (time.Duration, error) {
	ms, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("negative wait %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// String renders the descriptor back in catalog notation.
func (d ResetDescriptor) String() string {
	switch d.Kind {
	case ResetNone:
		return "none"
	case Reset1200bps:
		return "1200bps"
	case ResetDTR:
		return fmt.Sprintf("DTR;%t", d.Invert)
	case ResetDTRRTS:
		return fmt.Sprintf("DTR-RTS;%d;%d;%t", d.Wait1.Milliseconds(), d.Wait2.Milliseconds(), d.Invert)
	default:
		return fmt.Sprintf("reset(%d)", int(d.Kind))
	}
}

