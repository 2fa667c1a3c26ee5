package sonar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrNoReading is returned when every sample in an interval timed out.
var ErrNoReading = errors.New("no reading this interval: all samples timed out")

// Measurer takes a single distance measurement, honouring ctx as a deadline.
type Measurer interface {
	Measure(ctx context.Context) (float64, error)
}

// Config controls sampling within one update interval.
type Config struct {
	Samples       int           // samples per interval
	Interval      time.Duration // update interval the samples are spread across
	PulseDelay    time.Duration // minimum pause between samples
	SampleTimeout time.Duration // deadline for a single measurement
}

// Pause returns the sleep after each successful sample:
// max(PulseDelay, Interval/Samples).
func (c Config) Pause() time.Duration {
	if c.Samples <= 0 {
		return c.PulseDelay
	}
	return max(c.PulseDelay, c.Interval/time.Duration(c.Samples))
}

// Aggregator reduces a burst of samples to their median.
type Aggregator struct {
	m     Measurer
	cfg   Config
	log   *zap.SugaredLogger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAggregator creates an Aggregator over m.
func NewAggregator(m Measurer, cfg Config, log *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		m:     m,
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
	}
}

// MeasureAverage takes cfg.Samples measurements and returns the median of
// those that completed. A sample that exceeds cfg.SampleTimeout is discarded.
// Any other measurement error aborts the interval and is returned as is.
// If no sample survives, ErrNoReading is returned.
func (a *Aggregator) MeasureAverage(ctx context.Context) (float64, error) {
	distances := make([]float64, 0, a.cfg.Samples)
	pause := a.cfg.Pause()

	for i := 0; i < a.cfg.Samples; i++ {
		d, err := a.measureOne(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				a.log.Warnw("sample timed out", "sample", i, "timeout", a.cfg.SampleTimeout)
				continue
			}
			return 0, err
		}
		a.log.Debugw("sample", "sample", i, "distance_cm", d)
		distances = append(distances, d)

		if err := a.sleep(ctx, pause); err != nil {
			return 0, err
		}
	}

	m, err := Median(distances)
	if err != nil {
		return 0, fmt.Errorf("%w (%d samples)", ErrNoReading, a.cfg.Samples)
	}
	a.log.Debugw("interval median", "distance_cm", m, "samples", len(distances))
	return m, nil
}

func (a *Aggregator) measureOne(ctx context.Context) (float64, error) {
	sctx, cancel := context.WithTimeout(ctx, a.cfg.SampleTimeout)
	defer cancel()
	return a.m.Measure(sctx)
}

// Median returns the median of values without modifying the slice. For an
// even count it is the mean of the two middle values.
func Median(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New("median of empty set")
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
