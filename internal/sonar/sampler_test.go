package sonar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/water-level/internal/gpio"
)

func newFakeSampler(hw *gpio.FakeHardware, celsius float64) *Sampler {
	return NewSampler(hw, celsius).WithClock(hw.Now)
}

func TestSpeedOfSound(t *testing.T) {
	assert.InDelta(t, 33112.0, SpeedOfSound(20), 1e-9)
	assert.InDelta(t, 33100.0, SpeedOfSound(0), 1e-9)
	assert.InDelta(t, 33082.0, SpeedOfSound(-30), 1e-9)
}

func TestDistance(t *testing.T) {
	// 1ms round trip at 20°C
	assert.InDelta(t, 16.556, Distance(time.Millisecond, SpeedOfSound(20)), 1e-9)
	assert.Equal(t, 0.0, Distance(0, SpeedOfSound(20)))
}

func TestSamplerMeasure(t *testing.T) {
	hw := gpio.NewFakeHardware(time.Millisecond)
	s := newFakeSampler(hw, 20)

	d, err := s.Measure(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 16.556, d, 1e-6)
	assert.Equal(t, 1, hw.Triggers)
}

func TestSamplerMeasureWithEchoDelay(t *testing.T) {
	hw := gpio.NewFakeHardware(2 * time.Millisecond)
	hw.EchoDelay = 500 * time.Microsecond
	s := newFakeSampler(hw, 20)

	d, err := s.Measure(context.Background())
	require.NoError(t, err)
	// Polling adds at most one step to the measured width.
	want := Distance(2*time.Millisecond, SpeedOfSound(20))
	step := Distance(gpio.DefaultFakeStep, SpeedOfSound(20))
	assert.InDelta(t, want, d, step+1e-9)
}

func TestSamplerMeasureSequence(t *testing.T) {
	hw := gpio.NewFakeHardware(time.Millisecond, 2*time.Millisecond)
	s := newFakeSampler(hw, 0)

	d1, err := s.Measure(context.Background())
	require.NoError(t, err)
	d2, err := s.Measure(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 16.55, d1, 1e-6)
	assert.InDelta(t, 33.1, d2, 1e-6)
}

func TestSamplerNoEchoTimesOut(t *testing.T) {
	hw := gpio.NewFakeHardware(gpio.NoPulse)
	s := newFakeSampler(hw, 20)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Measure(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestSamplerEchoError(t *testing.T) {
	hw := gpio.NewFakeHardware(time.Millisecond)
	hw.EchoError = errors.New("line gone")
	s := newFakeSampler(hw, 20)

	_, err := s.Measure(context.Background())
	require.Error(t, err)
	assert.Equal(t, "line gone", err.Error())
}

func TestSamplerTriggerError(t *testing.T) {
	hw := gpio.NewFakeHardware(time.Millisecond)
	hw.TriggerError = errors.New("trigger stuck")
	s := newFakeSampler(hw, 20)

	_, err := s.Measure(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, hw.Triggers)
}
