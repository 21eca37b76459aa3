package config

import "strings"

// Validate checks catalog correctness.
// It performs declarative validation only and does not mutate the catalog.
func Validate(cat *Catalog) error {
	_, err := validate(cat)
	return err
}

// validate checks cat and returns the resolved profile of every board.
func validate(cat *Catalog) ([]Profile, error) {
	if len(cat.Boards) == 0 {
		return nil, Errorf("catalog defines no boards")
	}

	seen := make(map[string]bool)
	profiles := make([]Profile, 0, len(cat.Boards))

	for _, b := range cat.Boards {
		if strings.TrimSpace(b.Model) == "" {
			return nil, Errorf("board with empty model name")
		}

		key := strings.ToLower(b.Model)
		if seen[key] {
			return nil, Errorf("duplicate board model %q", b.Model)
		}
		seen[key] = true

		if b.BaudRate <= 0 {
			return nil, Errorf("board %q: baud_rate must be positive, got %d", b.Model, b.BaudRate)
		}
		if b.SleepAfterOpenMs < 0 || b.ReadTimeoutMs < 0 || b.WriteTimeoutMs < 0 {
			return nil, Errorf("board %q: timings must not be negative", b.Model)
		}

		p, err := b.Profile()
		if err != nil {
			return nil, err
		}

		// Control lines can only be toggled on an open port.
		switch p.PreOpenReset.Kind {
		case ResetNone, Reset1200bps:
		default:
			return nil, Errorf("board %q: pre-open reset must be empty or 1200bps, got %s", b.Model, p.PreOpenReset)
		}
		profiles = append(profiles, p)
	}

	return profiles, nil
}

// Normalize fills defaults for omitted timings.
func Normalize(cat *Catalog) {
	if cat == nil {
		return
	}

	for i := range cat.Boards {
		b := &cat.Boards[i]

		if b.ReadTimeoutMs == 0 {
			b.ReadTimeoutMs = DefaultReadTimeoutMs
		}
		if b.WriteTimeoutMs == 0 {
			b.WriteTimeoutMs = DefaultWriteTimeoutMs
		}
	}
}
