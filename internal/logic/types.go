// Package logic contains the pure tank and relay control logic.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// TankState is the classification of a tank's fill level.
// The zero value means no reading has been classified yet.
type TankState string

const (
	TankLow  TankState = "LOW"
	TankHigh TankState = "HIGH"
	TankOK   TankState = "OK"
)

// Signal is the commanded relay output.
type Signal string

const (
	SignalOn  Signal = "ON"
	SignalOff Signal = "OFF"
)

// EventType identifies a published control-loop event.
type EventType string

const (
	EventReading  EventType = "READING"
	EventRelayOn  EventType = "RELAY_ON"
	EventRelayOff EventType = "RELAY_OFF"
)

// Event is emitted by the Controller for each reading and relay transition.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Distance  float64 // cm from sensor to water
	Level     float64 // fill fraction 0..1
	Upper     TankState
	Lower     TankState
	Active    bool // inside a schedule window
	Relay     Signal
}

// Input is one interval reading.
type Input struct {
	Distance float64
	Time     time.Time
}

// RelayState is the relay output and when it last switched on.
type RelayState struct {
	On    bool
	Since time.Time // zero while off
}

// Signal returns the relay state as a Signal.
func (r RelayState) Signal() Signal {
	if r.On {
		return SignalOn
	}
	return SignalOff
}

// EventCounts tracks loop activity since startup.
type EventCounts struct {
	Readings int
	Starved  int // intervals where every sample timed out
	RelayOn  int
	RelayOff int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
