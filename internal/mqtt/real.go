package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/water-level/internal/logic"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // ms
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	BufferSize     int           // messages held while disconnected (0 = DefaultBufferSize)
	ConnectTimeout time.Duration // how long NewRealPublisher waits for the first connection
	RetryInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ClientID == "" {
		o.ClientID = "water-level"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 5 * time.Second
	}
	return o
}

// RealPublisher publishes to an actual MQTT broker. While the connection is
// down, messages are held in a ring buffer and replayed once it returns.
type RealPublisher struct {
	client paho.Client
	log    *zap.SugaredLogger

	mu            sync.Mutex
	buf           *ringBuffer
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting. An unreachable broker is not an error: the client keeps
// retrying in the background and publishes are buffered meanwhile.
func NewRealPublisher(opts Options, log *zap.SugaredLogger) (*RealPublisher, error) {
	opts = opts.withDefaults()
	p := &RealPublisher{
		log: log,
		buf: newRingBuffer(opts.BufferSize, log),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventOffline,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(opts.RetryInterval).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("mqtt connection lost", "error", err)
		})

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		log.Warnw("mqtt broker not reachable yet, buffering until connected",
			"broker", opts.Broker, "waited", opts.ConnectTimeout)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Infow("mqtt connected", "broker", opts.Broker, "client_id", opts.ClientID)
	return p, nil
}

// onConnect runs on every (re)connection. After a reconnect it announces
// RECONNECTED, overwriting the retained OFFLINE will, and then replays
// whatever was buffered while the connection was down.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if reconnect {
		p.log.Infow("mqtt reconnected", "buffered", len(pending))
		payload, err := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     EventReconnected,
		})
		if err == nil {
			p.deliver(c, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: true})
		}
	}

	for _, msg := range pending {
		if err := p.deliver(c, msg); err != nil {
			p.log.Warnw("mqtt replay failed", "topic", msg.topic, "error", err)
		}
	}
}

func (p *RealPublisher) deliver(c paho.Client, msg bufferedMsg) error {
	token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// send publishes msg now, or buffers it if the connection is down or the
// publish fails. A buffered message is not an error: it is replayed by
// onConnect. The connection check and the push share p.mu with the drain
// in onConnect, so a message cannot slip in behind a drain that already ran.
func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.deliver(p.client, msg); err != nil {
		p.log.Warnw("mqtt publish failed, buffering", "topic", msg.topic, "error", err)
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
	}
	return nil
}

// Publish sends a tank event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker. Buffered messages are dropped.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if n := p.buf.len(); n > 0 {
		p.log.Warnw("mqtt closing with undelivered messages", "count", n)
	}
	p.mu.Unlock()
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
