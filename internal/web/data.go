package web

import (
	"encoding/json"
	"fmt"

	"github.com/sweeney/water-level/internal/telemetry"
)

// DataPoint is one chart sample, encoded as [millis, level].
type DataPoint struct {
	Millis int64
	Level  float64
}

// MarshalJSON encodes the point as a two-element array.
func (p DataPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Millis, p.Level})
}

// UnmarshalJSON decodes a two-element array.
func (p *DataPoint) UnmarshalJSON(b []byte) error {
	var raw []json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("data point: want 2 elements, got %d", len(raw))
	}
	ms, err := raw[0].Int64()
	if err != nil {
		return fmt.Errorf("data point millis: %w", err)
	}
	level, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("data point level: %w", err)
	}
	p.Millis, p.Level = ms, level
	return nil
}

// DataJSON is the /data response body.
type DataJSON struct {
	Values []DataPoint `json:"values"`
}

func toDataPoint(p telemetry.Point) DataPoint {
	return DataPoint{Millis: p.Millis(), Level: p.Level}
}

func formatData(points []telemetry.Point) []byte {
	values := make([]DataPoint, len(points))
	for i, p := range points {
		values[i] = toDataPoint(p)
	}
	data, _ := json.Marshal(DataJSON{Values: values})
	return data
}
