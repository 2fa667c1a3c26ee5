// Package gpio provides the hardware handle for the ultrasonic sensor and
// relay outputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation simulates echo timing so tests run without hardware.
package gpio

import "fmt"

// Hardware owns the sensor and relay lines for the lifetime of the process.
// It is acquired once at startup and released with Close on every exit path.
type Hardware interface {
	// SetTrigger drives the sensor trigger output.
	SetTrigger(high bool) error

	// Echo returns the current level of the sensor echo input.
	Echo() (bool, error)

	// SetRelay drives a relay output. true = energised.
	SetRelay(r Relay, on bool) error

	// Close drives all relays off and releases the lines.
	Close() error
}

// Relay identifies one of the two relay outputs.
type Relay int

const (
	RelayUpper Relay = iota // fills the upper tank
	RelayLower
)

func (r Relay) String() string {
	switch r {
	case RelayUpper:
		return "upper"
	case RelayLower:
		return "lower"
	default:
		return fmt.Sprintf("relay(%d)", int(r))
	}
}

// Default pin assignments (BCM numbering).
const (
	DefaultChip       = "gpiochip0"
	DefaultTrigger    = 23
	DefaultEcho       = 24
	DefaultRelayUpper = 22
	DefaultRelayLower = 27
)

// Pins selects the chip and line offsets used by RealHardware.
type Pins struct {
	Chip       string
	Trigger    int
	Echo       int
	RelayUpper int
	RelayLower int
}

// DefaultPins returns the standard wiring.
func DefaultPins() Pins {
	return Pins{
		Chip:       DefaultChip,
		Trigger:    DefaultTrigger,
		Echo:       DefaultEcho,
		RelayUpper: DefaultRelayUpper,
		RelayLower: DefaultRelayLower,
	}
}
