//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// settleTime lets the sensor settle after the trigger is first driven low.
const settleTime = 500 * time.Millisecond

// RealHardware drives the sensor and relays through the Linux GPIO character device.
type RealHardware struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
	relays  map[Relay]*gpiocdev.Line
}

// NewRealHardware requests all lines on the given chip. Outputs start low.
func NewRealHardware(pins Pins) (*RealHardware, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", pins.Chip, err)
	}

	h := &RealHardware{chip: chip, relays: make(map[Relay]*gpiocdev.Line, 2)}

	h.trigger, err = chip.RequestLine(pins.Trigger, gpiocdev.AsOutput(0))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", pins.Trigger, err)
	}

	h.echo, err = chip.RequestLine(pins.Echo, gpiocdev.AsInput)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", pins.Echo, err)
	}

	for r, offset := range map[Relay]int{RelayUpper: pins.RelayUpper, RelayLower: pins.RelayLower} {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("request %s relay pin %d: %w", r, offset, err)
		}
		h.relays[r] = line
	}

	time.Sleep(settleTime)
	return h, nil
}

// SetTrigger drives the trigger line.
func (h *RealHardware) SetTrigger(high bool) error {
	if err := h.trigger.SetValue(boolToValue(high)); err != nil {
		return fmt.Errorf("set trigger: %w", err)
	}
	return nil
}

// Echo reads the echo line.
func (h *RealHardware) Echo() (bool, error) {
	v, err := h.echo.Value()
	if err != nil {
		return false, fmt.Errorf("read echo: %w", err)
	}
	return v == 1, nil
}

// SetRelay drives a relay line.
func (h *RealHardware) SetRelay(r Relay, on bool) error {
	line, ok := h.relays[r]
	if !ok {
		return fmt.Errorf("set relay: unknown %s", r)
	}
	if err := line.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set %s relay: %w", r, err)
	}
	return nil
}

// Close drives the relays off, then reconfigures every line to input with
// pull-down (matching Pi boot defaults) before releasing it. This keeps a pump
// from running on after the daemon exits.
func (h *RealHardware) Close() error {
	var errs []error

	for r, line := range h.relays {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s relay off: %w", r, err))
		}
		errs = append(errs, release(line, r.String()+" relay"))
	}
	if h.trigger != nil {
		errs = append(errs, release(h.trigger, "trigger"))
	}
	if h.echo != nil {
		errs = append(errs, release(h.echo, "echo"))
	}
	if h.chip != nil {
		if err := h.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

func release(line *gpiocdev.Line, name string) error {
	var errs []error
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
	}
	return errors.Join(errs...)
}

func boolToValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
