package gpio

import (
	"errors"
	"testing"
	"time"
)

// pollPulse releases the trigger and polls Echo until the pulse ends,
// returning the number of high polls.
func pollPulse(t *testing.T, f *FakeHardware, maxPolls int) int {
	t.Helper()
	f.SetTrigger(true)
	f.SetTrigger(false)

	high := 0
	for i := 0; i < maxPolls; i++ {
		v, err := f.Echo()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v {
			high++
		} else if high > 0 {
			break
		}
	}
	return high
}

func TestFakeHardwarePulseWidth(t *testing.T) {
	f := NewFakeHardware(100 * time.Microsecond)

	// 100µs at 10µs per poll: polls at +10..+90 are high, +100 is low.
	if got := pollPulse(t, f, 1000); got != 9 {
		t.Errorf("expected 9 high polls, got %d", got)
	}
	if f.Triggers != 1 {
		t.Errorf("expected 1 trigger, got %d", f.Triggers)
	}
}

func TestFakeHardwareScriptRepeatsLast(t *testing.T) {
	f := NewFakeHardware(50*time.Microsecond, 200*time.Microsecond)

	if got := pollPulse(t, f, 1000); got != 4 {
		t.Errorf("pulse 0: expected 4 high polls, got %d", got)
	}
	if got := pollPulse(t, f, 1000); got != 19 {
		t.Errorf("pulse 1: expected 19 high polls, got %d", got)
	}
	if got := pollPulse(t, f, 1000); got != 19 {
		t.Errorf("pulse 2 (repeat): expected 19 high polls, got %d", got)
	}
}

func TestFakeHardwareNoPulse(t *testing.T) {
	f := NewFakeHardware(NoPulse)

	if got := pollPulse(t, f, 500); got != 0 {
		t.Errorf("expected echo to stay low, got %d high polls", got)
	}
}

func TestFakeHardwareEchoDelay(t *testing.T) {
	f := NewFakeHardware(100 * time.Microsecond)
	f.EchoDelay = 50 * time.Microsecond

	f.SetTrigger(true)
	f.SetTrigger(false)

	var levels []bool
	for i := 0; i < 20; i++ {
		v, _ := f.Echo()
		levels = append(levels, v)
	}
	// +10..+40 low, +50..+140 high, +150.. low
	for i, v := range levels {
		at := time.Duration(i+1) * 10 * time.Microsecond
		want := at >= 50*time.Microsecond && at < 150*time.Microsecond
		if v != want {
			t.Errorf("poll at +%v: got %v, want %v", at, v, want)
		}
	}
}

func TestFakeHardwareEchoBeforeTrigger(t *testing.T) {
	f := NewFakeHardware(100 * time.Microsecond)

	v, err := f.Echo()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v {
		t.Error("echo should be low before any trigger")
	}
}

func TestFakeHardwareClockAdvancesOnEcho(t *testing.T) {
	f := NewFakeHardware()
	start := f.Now()

	f.Echo()
	f.Echo()

	if got := f.Now().Sub(start); got != 2*DefaultFakeStep {
		t.Errorf("clock advanced %v, want %v", got, 2*DefaultFakeStep)
	}
}

func TestFakeHardwareErrors(t *testing.T) {
	f := NewFakeHardware(time.Millisecond)
	f.EchoError = errors.New("echo fault")
	f.TriggerError = errors.New("trigger fault")
	f.RelayError = errors.New("relay fault")

	if _, err := f.Echo(); err == nil || err.Error() != "echo fault" {
		t.Errorf("Echo: unexpected error %v", err)
	}
	if err := f.SetTrigger(true); err == nil || err.Error() != "trigger fault" {
		t.Errorf("SetTrigger: unexpected error %v", err)
	}
	if err := f.SetRelay(RelayUpper, true); err == nil || err.Error() != "relay fault" {
		t.Errorf("SetRelay: unexpected error %v", err)
	}
}

func TestFakeHardwareRelays(t *testing.T) {
	f := NewFakeHardware()

	f.SetRelay(RelayUpper, true)
	f.SetRelay(RelayLower, false)
	f.SetRelay(RelayUpper, false)

	if f.Relay(RelayUpper) {
		t.Error("upper relay should be off")
	}
	if len(f.RelayWrites) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(f.RelayWrites))
	}
	if f.RelayWrites[0] != (RelayWrite{Relay: RelayUpper, On: true}) {
		t.Errorf("write 0: got %+v", f.RelayWrites[0])
	}
}

func TestFakeHardwareClose(t *testing.T) {
	f := NewFakeHardware()
	f.SetRelay(RelayUpper, true)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.Relay(RelayUpper) {
		t.Error("Close should drive relays off")
	}
}

func TestFakeHardwareReset(t *testing.T) {
	f := NewFakeHardware(50*time.Microsecond, 200*time.Microsecond)
	pollPulse(t, f, 1000)
	f.SetRelay(RelayLower, true)

	f.Reset()

	if f.Triggers != 0 || len(f.RelayWrites) != 0 {
		t.Errorf("expected cleared state, got triggers=%d writes=%d", f.Triggers, len(f.RelayWrites))
	}
	if got := pollPulse(t, f, 1000); got != 4 {
		t.Errorf("after reset: expected first pulse again (4 polls), got %d", got)
	}
}

func TestRelayString(t *testing.T) {
	if RelayUpper.String() != "upper" || RelayLower.String() != "lower" {
		t.Errorf("unexpected names: %s %s", RelayUpper, RelayLower)
	}
	if Relay(7).String() != "relay(7)" {
		t.Errorf("unexpected name for unknown relay: %s", Relay(7))
	}
}
