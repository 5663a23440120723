package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/signalflow/transport"
)

type mockConfig struct {
	buffer int64
}

func (m *mockConfig) EffectiveTransport() string    { return TransportName }
func (m *mockConfig) GetTransportBufferSize() int64 { return m.buffer }

type persistentMockConfig struct{ mockConfig }

func (persistentMockConfig) IsTransportPersistent() bool { return true }

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.InProcess)
	assert.True(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsReliableDelivery())
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	t.Run("round trips a message", func(t *testing.T) {
		tr, err := Build(context.Background(), &mockConfig{buffer: 4}, watermill.NopLogger{})
		require.NoError(t, err)
		defer tr.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		msgs, err := tr.Subscriber.Subscribe(ctx, "signals")
		require.NoError(t, err)

		require.NoError(t, tr.Publisher.Publish("signals", message.NewMessage("1", []byte("hello"))))

		select {
		case msg := <-msgs:
			assert.Equal(t, "hello", string(msg.Payload))
			msg.Ack()
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	})

	t.Run("passes the buffer size to the factory", func(t *testing.T) {
		originalFactory := Factory
		defer func() { Factory = originalFactory }()

		var got gochannel.Config
		Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
			got = cfg
			return originalFactory(cfg, logger)
		}

		tr, err := Build(context.Background(), &mockConfig{buffer: 32}, watermill.NopLogger{})
		require.NoError(t, err)
		defer tr.Close()
		assert.Equal(t, int64(32), got.OutputChannelBuffer)
		assert.False(t, got.Persistent)
	})

	t.Run("replays to late subscribers when persistent", func(t *testing.T) {
		tr, err := Build(context.Background(), &persistentMockConfig{mockConfig{buffer: 4}}, watermill.NopLogger{})
		require.NoError(t, err)
		defer tr.Close()

		require.NoError(t, tr.Publisher.Publish("late", message.NewMessage("1", []byte("kept"))))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		msgs, err := tr.Subscriber.Subscribe(ctx, "late")
		require.NoError(t, err)

		select {
		case msg := <-msgs:
			assert.Equal(t, "kept", string(msg.Payload))
			msg.Ack()
		case <-time.After(time.Second):
			t.Fatal("persisted message not replayed")
		}
	})
}
