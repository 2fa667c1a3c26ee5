// Package status provides a thread-safe status tracker for the water-level daemon.
// It is written by the control loop and read by HTTP handlers and MQTT
// lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/water-level/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs  int64
	Samples     int
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Schedule    []string
	TankHeight  float64
	Upper       logic.Thresholds
	Lower       logic.Thresholds
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Upper         logic.TankState
	Lower         logic.TankState
	Relay         logic.RelayState
	Last          *logic.Event // most recent READING, nil until the first one
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Ready reports whether at least one reading has been taken.
func (s Snapshot) Ready() bool {
	return s.Last != nil
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the controller state after a loop iteration.
// last is the most recent READING event, or nil if there has been none.
func (t *Tracker) Update(upper, lower logic.TankState, relay logic.RelayState, last *logic.Event, counts logic.EventCounts) {
	var lastCopy *logic.Event
	if last != nil {
		e := *last
		lastCopy = &e
	}

	t.mu.Lock()
	t.snap.Upper = upper
	t.snap.Lower = lower
	t.snap.Relay = relay
	t.snap.Last = lastCopy
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
