package logic

import "time"

// Config holds the tank and schedule settings for a Controller.
type Config struct {
	Upper      Thresholds
	Lower      Thresholds
	Schedule   []Period
	TankHeight float64 // cm, used for the fill fraction
}

// Controller drives the fill relay from interval readings. It owns both tank
// states and the relay state; the caller mirrors Relay().On onto the output.
type Controller struct {
	upper         *Tank
	lower         *Tank
	schedule      []Period
	tankHeight    float64
	relay         RelayState
	last          *Event
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewController creates a Controller with the relay off.
// The startTime is used for calculating uptime in heartbeat events.
func NewController(cfg Config, startTime time.Time) *Controller {
	return &Controller{
		upper:         NewTank("upper", cfg.Upper),
		lower:         NewTank("lower", cfg.Lower),
		schedule:      cfg.Schedule,
		tankHeight:    cfg.TankHeight,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process applies one interval reading and returns the events to publish:
// always a READING, followed by RELAY_ON or RELAY_OFF when the relay changes.
// Both tanks are classified from the same distance (single-sensor setup).
// The relay is re-decided from scratch each call; there is no hysteresis.
func (c *Controller) Process(input Input) []Event {
	upper := c.upper.Update(input.Distance)
	lower := c.lower.Update(input.Distance)
	active := Active(input.Time, c.schedule)
	signal := Decide(active, upper, lower)

	reading := Event{
		Timestamp: input.Time,
		Type:      EventReading,
		Distance:  input.Distance,
		Level:     FillLevel(input.Distance, c.tankHeight),
		Upper:     upper,
		Lower:     lower,
		Active:    active,
		Relay:     signal,
	}
	c.last = &reading
	c.eventCounts.Readings++

	events := []Event{reading}

	on := signal == SignalOn
	if on != c.relay.On {
		transition := reading
		if on {
			transition.Type = EventRelayOn
			c.relay = RelayState{On: true, Since: input.Time}
			c.eventCounts.RelayOn++
		} else {
			transition.Type = EventRelayOff
			c.relay = RelayState{}
			c.eventCounts.RelayOff++
		}
		events = append(events, transition)
	}

	return events
}

// Starve records an interval with no usable reading. Tank and relay state
// are left untouched.
func (c *Controller) Starve() {
	c.eventCounts.Starved++
}

// IsReady returns whether at least one reading has been processed.
func (c *Controller) IsReady() bool {
	return c.last != nil
}

// Relay returns the current relay state.
func (c *Controller) Relay() RelayState {
	return c.relay
}

// CurrentState returns the current tank states.
func (c *Controller) CurrentState() (upper TankState, lower TankState) {
	return c.upper.State(), c.lower.State()
}

// LastReading returns the most recent READING event, if any.
func (c *Controller) LastReading() (Event, bool) {
	if c.last == nil {
		return Event{}, false
	}
	return *c.last, true
}

// EventCountsSnapshot returns a copy of the activity counters.
func (c *Controller) EventCountsSnapshot() EventCounts {
	return c.eventCounts
}

// Reset clears tank states and forces the relay off without counting a
// transition.
func (c *Controller) Reset() {
	c.upper.Reset()
	c.lower.Reset()
	c.relay = RelayState{}
	c.last = nil
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if no reading has been processed,
// if the interval has not elapsed, or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !c.IsReady() {
		return nil
	}

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.eventCounts,
	}
}
