package logic

// Thresholds are sensor-to-water distances in cm. A reading at or beyond Low
// means the tank is low; a reading at or under High means it is full. With
// the sensor mounted above the water, High is normally smaller than Low.
type Thresholds struct {
	Low  float64
	High float64
}

// Classify maps a distance reading to a TankState. Low is checked first, then
// High, otherwise OK, so exactly one state results for any thresholds.
func Classify(distance float64, th Thresholds) TankState {
	if distance >= th.Low {
		return TankLow
	}
	if distance <= th.High {
		return TankHigh
	}
	return TankOK
}

// Tank holds the last classified state of one reservoir.
type Tank struct {
	Name       string
	Thresholds Thresholds
	state      TankState
}

// NewTank creates a Tank in the pending state.
func NewTank(name string, th Thresholds) *Tank {
	return &Tank{Name: name, Thresholds: th}
}

// Update classifies the reading and stores the result.
func (t *Tank) Update(distance float64) TankState {
	t.state = Classify(distance, t.Thresholds)
	return t.state
}

// Reset returns the tank to the pending state.
func (t *Tank) Reset() {
	t.state = ""
}

// State returns the last classified state ("" before the first Update).
func (t *Tank) State() TankState {
	return t.state
}

// FillLevel converts a distance reading into a fill fraction of a tank of
// the given height, clamped to [0, 1].
func FillLevel(distance, height float64) float64 {
	if height <= 0 {
		return 0
	}
	level := (height - distance) / height
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
