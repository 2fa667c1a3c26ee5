//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealHardware is not available on non-Linux platforms.
type RealHardware struct{}

// NewRealHardware returns an error on non-Linux platforms.
func NewRealHardware(pins Pins) (*RealHardware, error) {
	return nil, errUnsupported
}

func (h *RealHardware) SetTrigger(high bool) error      { return errUnsupported }
func (h *RealHardware) Echo() (bool, error)             { return false, errUnsupported }
func (h *RealHardware) SetRelay(r Relay, on bool) error { return errUnsupported }

// Close is a no-op on non-Linux platforms.
func (h *RealHardware) Close() error {
	return nil
}
