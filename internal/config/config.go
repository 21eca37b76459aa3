package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bigbag/avr-flasher/internal/mcu"
)

// Default timeouts applied by Normalize when a board omits them.
const (
	DefaultReadTimeoutMs  = 1000
	DefaultWriteTimeoutMs = 1000
)

// Protocol identifies a bootloader wire protocol.
type Protocol int

// Supported bootloader protocols
const (
	STK500v1 Protocol = iota + 1
	STK500v2
	AVR109
)

func (p Protocol) String() string {
	switch p {
	case STK500v1:
		return "stk500v1"
	case STK500v2:
		return "stk500v2"
	case AVR109:
		return "avr109"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ParseProtocol resolves a protocol name case-insensitively.
func ParseProtocol(name string) (Protocol, error) {
	for _, p := range []Protocol{STK500v1, STK500v2, AVR109} {
		if strings.EqualFold(strings.TrimSpace(name), p.String()) {
			return p, nil
		}
	}
	return 0, Errorf("unrecognized protocol %q", name)
}

// Catalog is the board catalog file.
type Catalog struct {
	Boards []BoardConfig `yaml:"boards"`

	// resolved by Parse, in Boards order
	profiles []Profile
}

// BoardConfig is one board entry as written in the catalog file.
type BoardConfig struct {
	Model    string `yaml:"model"`
	MCU      string `yaml:"mcu"`
	Protocol string `yaml:"protocol"`
	BaudRate int    `yaml:"baud_rate"`

	// Reset descriptors in catalog notation, see ParseResetDescriptor
	PreOpenReset  string `yaml:"pre_open_reset"`
	PostOpenReset string `yaml:"post_open_reset"`
	CloseReset    string `yaml:"close_reset"`

	SleepAfterOpenMs int `yaml:"sleep_after_open_ms"`
	ReadTimeoutMs    int `yaml:"read_timeout_ms"`
	WriteTimeoutMs   int `yaml:"write_timeout_ms"`
}

// Profile is the resolved, immutable configuration of one board model.
type Profile struct {
	Model    string
	MCU      mcu.ID
	Protocol Protocol
	BaudRate int

	PreOpenReset  ResetDescriptor
	PostOpenReset ResetDescriptor
	CloseReset    ResetDescriptor

	SleepAfterOpen time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Profile resolves the board's identifiers and reset descriptors.
func (b BoardConfig) Profile() (Profile, error) {
	id, err := mcu.ParseID(b.MCU)
	if err != nil {
		return Profile{}, Errorf("board %q: unrecognized MCU %q", b.Model, b.MCU)
	}

	proto, err := ParseProtocol(b.Protocol)
	if err != nil {
		return Profile{}, Errorf("board %q: unrecognized protocol %q", b.Model, b.Protocol)
	}

	preOpen, err := ParseResetDescriptor(b.PreOpenReset)
	if err != nil {
		return Profile{}, fmt.Errorf("board %q pre-open reset: %w", b.Model, err)
	}
	postOpen, err := ParseResetDescriptor(b.PostOpenReset)
	if err != nil {
		return Profile{}, fmt.Errorf("board %q post-open reset: %w", b.Model, err)
	}
	closeReset, err := ParseResetDescriptor(b.CloseReset)
	if err != nil {
		return Profile{}, fmt.Errorf("board %q close reset: %w", b.Model, err)
	}

	return Profile{
		Model:          b.Model,
		MCU:            id,
		Protocol:       proto,
		BaudRate:       b.BaudRate,
		PreOpenReset:   preOpen,
		PostOpenReset:  postOpen,
		CloseReset:     closeReset,
		SleepAfterOpen: time.Duration(b.SleepAfterOpenMs) * time.Millisecond,
		ReadTimeout:    time.Duration(b.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:   time.Duration(b.WriteTimeoutMs) * time.Millisecond,
	}, nil
}

// Parse decodes, validates and normalizes a catalog.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, Errorf("failed to decode catalog: %v", err)
	}

	Normalize(&cat)
	profiles, err := validate(&cat)
	if err != nil {
		return nil, err
	}
	cat.profiles = profiles

	return &cat, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Lookup returns the profile of a model, matched case-insensitively.
// Only catalogs built by Parse or Load hold profiles.
func (c *Catalog) Lookup(model string) (Profile, error) {
	for _, p := range c.profiles {
		if strings.EqualFold(p.Model, strings.TrimSpace(model)) {
			return p, nil
		}
	}
	return Profile{}, Errorf("unable to find configuration for %q", model)
}

// Models returns the catalog's model names in file order.
func (c *Catalog) Models() []string {
	models := make([]string, 0, len(c.Boards))
	for _, b := range c.Boards {
		models = append(models, b.Model)
	}
	return models
}
