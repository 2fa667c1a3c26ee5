package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Upper         string       `json:"upper"`
	Lower         string       `json:"lower"`
	Relay         RelayJSON    `json:"relay"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RelayJSON reports the fill relay output.
type RelayJSON struct {
	State string `json:"state"`
	Since string `json:"since,omitempty"`
}

// ReadingJSON is the most recent interval reading.
type ReadingJSON struct {
	Timestamp      string  `json:"timestamp"`
	DistanceCm     float64 `json:"distance_cm"`
	Level          float64 `json:"level"`
	ScheduleActive bool    `json:"schedule_active"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Readings int `json:"readings"`
	Starved  int `json:"starved"`
	RelayOn  int `json:"relay_on"`
	RelayOff int `json:"relay_off"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ThresholdsJSON is the JSON representation of one tank's thresholds.
type ThresholdsJSON struct {
	LowCm  float64 `json:"low_cm"`
	HighCm float64 `json:"high_cm"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs   int64          `json:"interval_ms"`
	Samples      int            `json:"samples"`
	HeartbeatMs  int64          `json:"heartbeat_ms"`
	Broker       string         `json:"broker"`
	HTTPAddr     string         `json:"http_addr"`
	Schedule     []string       `json:"schedule"`
	TankHeightCm float64        `json:"tank_height_cm"`
	Upper        ThresholdsJSON `json:"upper"`
	Lower        ThresholdsJSON `json:"lower"`
}

func stateOrUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	relay := RelayJSON{State: string(snap.Relay.Signal())}
	if snap.Relay.On {
		relay.Since = snap.Relay.Since.UTC().Format(time.RFC3339)
	}

	schedule := snap.Config.Schedule
	if schedule == nil {
		schedule = []string{}
	}

	inner := StatusInner{
		Upper:         stateOrUnknown(string(snap.Upper)),
		Lower:         stateOrUnknown(string(snap.Lower)),
		Relay:         relay,
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Readings: snap.Counts.Readings,
			Starved:  snap.Counts.Starved,
			RelayOn:  snap.Counts.RelayOn,
			RelayOff: snap.Counts.RelayOff,
		},
		Config: ConfigJSON{
			IntervalMs:   snap.Config.IntervalMs,
			Samples:      snap.Config.Samples,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			Schedule:     schedule,
			TankHeightCm: snap.Config.TankHeight,
			Upper:        ThresholdsJSON{LowCm: snap.Config.Upper.Low, HighCm: snap.Config.Upper.High},
			Lower:        ThresholdsJSON{LowCm: snap.Config.Lower.Low, HighCm: snap.Config.Lower.High},
		},
	}

	if snap.Last != nil {
		inner.Reading = &ReadingJSON{
			Timestamp:      snap.Last.Timestamp.UTC().Format(time.RFC3339),
			DistanceCm:     snap.Last.Distance,
			Level:          snap.Last.Level,
			ScheduleActive: snap.Last.Active,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
