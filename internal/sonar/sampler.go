// Package sonar measures distance with an HC-SR04 style ultrasonic module and
// aggregates repeated measurements into a single reading per interval.
package sonar

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/water-level/internal/gpio"
)

// triggerPulse is how long the trigger is held high to start a measurement.
const triggerPulse = 10 * time.Microsecond

// SpeedOfSound returns the speed of sound in cm/s at the given air
// temperature in degrees Celsius.
func SpeedOfSound(celsius float64) float64 {
	return 33100 + 0.6*celsius
}

// Distance converts a round-trip echo time into a one-way distance in cm.
func Distance(echo time.Duration, speed float64) float64 {
	return echo.Seconds() * speed / 2
}

// Sampler takes single distance measurements from the sensor.
type Sampler struct {
	hw    gpio.Hardware
	speed float64
	now   func() time.Time
}

// NewSampler creates a Sampler for air at the given temperature.
func NewSampler(hw gpio.Hardware, celsius float64) *Sampler {
	return &Sampler{
		hw:    hw,
		speed: SpeedOfSound(celsius),
		now:   time.Now,
	}
}

// WithClock replaces the time source used to time echoes. Tests pair it
// with gpio.FakeHardware.Now.
func (s *Sampler) WithClock(now func() time.Time) *Sampler {
	s.now = now
	return s
}

// Measure fires one trigger pulse and times the echo by polling the echo pin.
// The echo may never arrive; the wait is bounded only by ctx, and Measure
// returns ctx.Err() once it is done.
func (s *Sampler) Measure(ctx context.Context) (float64, error) {
	if err := s.hw.SetTrigger(false); err != nil {
		return 0, err
	}
	if err := s.hw.SetTrigger(true); err != nil {
		return 0, err
	}
	time.Sleep(triggerPulse)
	if err := s.hw.SetTrigger(false); err != nil {
		return 0, err
	}

	// Rising edge: start is the last time the echo was seen low.
	start := s.now()
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		high, err := s.hw.Echo()
		if err != nil {
			return 0, err
		}
		if high {
			break
		}
		start = s.now()
	}

	// Falling edge.
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		high, err := s.hw.Echo()
		if err != nil {
			return 0, err
		}
		if !high {
			break
		}
	}
	stop := s.now()

	elapsed := stop.Sub(start)
	if elapsed < 0 {
		return 0, fmt.Errorf("echo ended before it started (%v)", elapsed)
	}
	return Distance(elapsed, s.speed), nil
}
