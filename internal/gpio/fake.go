package gpio

import (
	"sync"
	"time"
)

// NoPulse scripts a measurement whose echo never rises.
const NoPulse time.Duration = -1

// DefaultFakeStep is how far the fake clock advances per Echo poll.
const DefaultFakeStep = 10 * time.Microsecond

// RelayWrite records a single SetRelay call.
type RelayWrite struct {
	Relay Relay
	On    bool
}

// FakeHardware is a test double that simulates an ultrasonic sensor on a
// virtual clock. Each Echo poll advances the clock by Step, so a sampler that
// reads time from Now measures the scripted pulse widths deterministically.
type FakeHardware struct {
	mu sync.Mutex

	// Pulses contains scripted echo pulse widths, one per measurement.
	// Each trigger release consumes the next entry; once exhausted the last
	// entry repeats. NoPulse means the echo never rises.
	Pulses []time.Duration

	// EchoDelay is the time from trigger release to echo rising edge.
	EchoDelay time.Duration

	// Step is the virtual time consumed by one Echo poll.
	Step time.Duration

	// EchoError, TriggerError and RelayError, if set, are returned by the
	// matching calls.
	EchoError    error
	TriggerError error
	RelayError   error

	// Relays holds the last level written to each relay.
	Relays map[Relay]bool

	// RelayWrites records every SetRelay call in order.
	RelayWrites []RelayWrite

	// Triggers counts trigger releases (completed trigger pulses).
	Triggers int

	// Closed tracks if Close was called.
	Closed bool

	clock    time.Time
	trigger  bool
	released time.Time
	pulse    time.Duration
	index    int
}

// NewFakeHardware creates a FakeHardware with the given pulse widths.
func NewFakeHardware(pulses ...time.Duration) *FakeHardware {
	return &FakeHardware{
		Pulses: pulses,
		Step:   DefaultFakeStep,
		Relays: make(map[Relay]bool),
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now returns the virtual clock.
func (f *FakeHardware) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

// SetTrigger records trigger edges. A high-to-low transition starts a new
// simulated measurement.
func (f *FakeHardware) SetTrigger(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TriggerError != nil {
		return f.TriggerError
	}
	if f.trigger && !high {
		f.released = f.clock
		f.pulse = f.nextPulse()
		f.Triggers++
	}
	f.trigger = high
	return nil
}

func (f *FakeHardware) nextPulse() time.Duration {
	if len(f.Pulses) == 0 {
		return NoPulse
	}
	p := f.Pulses[f.index]
	if f.index < len(f.Pulses)-1 {
		f.index++
	}
	return p
}

// Echo advances the virtual clock by one step and reports whether the
// simulated echo pulse is high at the new time.
func (f *FakeHardware) Echo() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EchoError != nil {
		return false, f.EchoError
	}

	f.clock = f.clock.Add(f.Step)
	if f.Triggers == 0 || f.pulse == NoPulse {
		return false, nil
	}
	elapsed := f.clock.Sub(f.released)
	return elapsed >= f.EchoDelay && elapsed < f.EchoDelay+f.pulse, nil
}

// SetRelay records the relay level.
func (f *FakeHardware) SetRelay(r Relay, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RelayError != nil {
		return f.RelayError
	}
	f.Relays[r] = on
	f.RelayWrites = append(f.RelayWrites, RelayWrite{Relay: r, On: on})
	return nil
}

// Relay returns the last level written to r.
func (f *FakeHardware) Relay(r Relay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Relays[r]
}

// Close drives the relays off and marks the hardware as closed.
func (f *FakeHardware) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Relays[RelayUpper] = false
	f.Relays[RelayLower] = false
	f.Closed = true
	return nil
}

// Reset rewinds the pulse script and clears recorded calls.
func (f *FakeHardware) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.index = 0
	f.Triggers = 0
	f.RelayWrites = nil
	f.Relays = make(map[Relay]bool)
	f.Closed = false
}
