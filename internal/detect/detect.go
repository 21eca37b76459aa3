package detect

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/bigbag/avr-flasher/internal/config"
	"github.com/bigbag/avr-flasher/internal/serial"
)

// Result describes a serial port reported by the OS.
type Result struct {
	Port         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string

	// Board is a guess based on the USB IDs, empty when unknown.
	Board string
}

// USB IDs of common Arduino boards and USB-serial bridges
var knownBoards = map[string]string{
	"2341:0043": "Arduino Uno R3",
	"2341:0001": "Arduino Uno",
	"2341:0010": "Arduino Mega 2560",
	"2341:0042": "Arduino Mega 2560 R3",
	"2341:8036": "Arduino Leonardo",
	"2341:0036": "Arduino Leonardo (bootloader)",
	"2341:8037": "Arduino Micro",
	"2341:0037": "Arduino Micro (bootloader)",
	"1A86:7523": "CH340 serial (Nano clone)",
	"0403:6001": "FTDI FT232 serial",
}

// ResolvePort picks the port to program from the ports the OS reports.
//
// An empty request auto-selects the only reported port. Zero or several
// ports, or a requested name that matches none of them case-insensitively,
// is a configuration error. The reported spelling of the port is returned.
func ResolvePort(requested string, ports []string) (string, error) {
	ports = unique(ports)
	requested = strings.TrimSpace(requested)

	if requested == "" {
		switch len(ports) {
		case 0:
			return "", config.Errorf("no serial ports found, connect the board or pass --port")
		case 1:
			return ports[0], nil
		default:
			return "", config.Errorf("multiple serial ports found (%s), pass --port to choose one", strings.Join(ports, ", "))
		}
	}

	for _, p := range ports {
		if strings.EqualFold(p, requested) {
			return p, nil
		}
	}
	return "", config.Errorf("port %q not found, available: [%s]", requested, strings.Join(ports, ", "))
}

// DetectPort resolves requested against the ports driver reports.
func DetectPort(driver serial.Driver, requested string) (string, error) {
	ports, err := driver.Ports()
	if err != nil {
		return "", fmt.Errorf("failed to list ports: %w", err)
	}
	return ResolvePort(requested, ports)
}

// ListDevices returns the serial ports with their USB details, sorted by
// port name.
func ListDevices() ([]Result, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	results := make([]Result, 0, len(ports))
	for _, p := range ports {
		results = append(results, newResult(p))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Port < results[j].Port
	})
	return results, nil
}

func newResult(p *enumerator.PortDetails) Result {
	r := Result{
		Port:         p.Name,
		IsUSB:        p.IsUSB,
		VID:          strings.ToUpper(p.VID),
		PID:          strings.ToUpper(p.PID),
		SerialNumber: p.SerialNumber,
		Product:      p.Product,
	}
	if r.IsUSB {
		r.Board = knownBoards[r.VID+":"+r.PID]
	}
	return r
}

func unique(ports []string) []string {
	seen := make(map[string]bool, len(ports))
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
