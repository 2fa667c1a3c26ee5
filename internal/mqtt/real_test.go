package mqtt

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/water-level/internal/logic"
)

type received struct {
	topic   string
	payload []byte
}

// testBroker is an in-process broker that records everything published to
// the water/# topics.
type testBroker struct {
	server *mochi.Server
	mu     sync.Mutex
	msgs   []received
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startBroker(t *testing.T, addr string) *testBroker {
	t.Helper()
	b := &testBroker{server: mochi.New(&mochi.Options{InlineClient: true})}

	require.NoError(t, b.server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, b.server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, b.server.Subscribe("water/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		b.mu.Lock()
		b.msgs = append(b.msgs, received{topic: pk.TopicName, payload: append([]byte(nil), pk.Payload...)})
		b.mu.Unlock()
	}))
	require.NoError(t, b.server.Serve())

	t.Cleanup(func() { b.server.Close() })
	return b
}

func (b *testBroker) messages() []received {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]received(nil), b.msgs...)
}

func testOptions(addr string) Options {
	return Options{
		Broker:         "tcp://" + addr,
		ClientID:       "water-level-test",
		ConnectTimeout: 2 * time.Second,
		RetryInterval:  100 * time.Millisecond,
	}
}

func TestRealPublisherPublishes(t *testing.T) {
	addr := freeAddr(t)
	broker := startBroker(t, addr)

	p, err := NewRealPublisher(testOptions(addr), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	require.True(t, p.IsConnected())

	require.NoError(t, p.Publish(logic.Event{
		Timestamp: time.Now(),
		Type:      logic.EventRelayOn,
		Distance:  9,
		Upper:     logic.TankLow,
		Lower:     logic.TankOK,
		Active:    true,
		Relay:     logic.SignalOn,
	}))
	require.NoError(t, p.PublishSystem(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventStartup,
		Retained:  true,
	}))

	require.Eventually(t, func() bool { return len(broker.messages()) == 2 }, 5*time.Second, 20*time.Millisecond)

	msgs := broker.messages()
	assert.Equal(t, Topic, msgs[0].topic)
	assert.Equal(t, TopicSystem, msgs[1].topic)

	var parsed Payload
	require.NoError(t, json.Unmarshal(msgs[0].payload, &parsed))
	assert.Equal(t, "RELAY_ON", parsed.Tank.Event)
	assert.Equal(t, "LOW", parsed.Tank.Upper.State)
	assert.NotEmpty(t, parsed.Tank.ID)
}

func TestRealPublisherBuffersUntilConnected(t *testing.T) {
	addr := freeAddr(t)
	opts := testOptions(addr)
	opts.ConnectTimeout = 50 * time.Millisecond

	p, err := NewRealPublisher(opts, zap.NewNop().Sugar())
	require.NoError(t, err, "unreachable broker should not be fatal")
	t.Cleanup(func() { p.Close() })
	require.False(t, p.IsConnected())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(logic.Event{Timestamp: time.Now(), Type: logic.EventReading, Distance: float64(i)}))
	}
	assert.Equal(t, 3, p.Buffered())

	broker := startBroker(t, addr)

	require.Eventually(t, func() bool { return len(broker.messages()) == 3 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())

	for i, msg := range broker.messages() {
		var parsed Payload
		require.NoError(t, json.Unmarshal(msg.payload, &parsed))
		assert.Equal(t, float64(i), parsed.Tank.DistanceCm, "replay out of order at %d", i)
	}
}
