// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/water-level/internal/logic"
)

// Topic is the MQTT topic for readings and relay changes.
const Topic = "water/tank/level/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "water/tank/level/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventHeartbeat   = "HEARTBEAT"
	EventShutdown    = "SHUTDOWN"
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a tank event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// newID generates message IDs. Replaced in tests for stable payloads.
var newID = uuid.NewString

// Payload represents the MQTT message payload structure.
type Payload struct {
	Tank TankPayload `json:"tank"`
}

// TankPayload contains the event details.
type TankPayload struct {
	ID             string    `json:"id"`
	Timestamp      string    `json:"timestamp"`
	Event          string    `json:"event"`
	DistanceCm     float64   `json:"distance_cm"`
	Level          float64   `json:"level"`
	Upper          StateJSON `json:"upper"`
	Lower          StateJSON `json:"lower"`
	ScheduleActive bool      `json:"schedule_active"`
	Relay          StateJSON `json:"relay"`
}

// StateJSON wraps a single state string.
type StateJSON struct {
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a tank event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Tank: TankPayload{
			ID:             newID(),
			Timestamp:      event.Timestamp.UTC().Format(time.RFC3339),
			Event:          string(event.Type),
			DistanceCm:     event.Distance,
			Level:          event.Level,
			Upper:          StateJSON{State: string(event.Upper)},
			Lower:          StateJSON{State: string(event.Lower)},
			ScheduleActive: event.Active,
			Relay:          StateJSON{State: string(event.Relay)},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			ID:        newID(),
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
