package mqtt

import "github.com/sweeney/water-level/internal/logic"

// NopPublisher discards everything. Used when the broker is set to "off".
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
