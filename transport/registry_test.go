package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	pub := &mockPublisher{}
	sub := &mockSubscriber{}

	var gotBuffer int64
	r.Register("mock", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		gotBuffer = cfg.GetTransportBufferSize()
		assert.NotNil(t, logger)
		return Transport{Publisher: pub, Subscriber: sub}, nil
	})

	tr, err := r.Build(context.Background(), &mockConfig{transport: "mock", buffer: 16}, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
	assert.Equal(t, int64(16), gotBuffer)
}

func TestRegistryBuildErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build(context.Background(), nil, watermill.NopLogger{})
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = r.Build(context.Background(), &mockConfig{transport: "missing"}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "missing"`)

	boom := errors.New("boom")
	r.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	})
	_, err = r.Build(context.Background(), &mockConfig{transport: "broken"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `build transport "broken"`)
}

func TestRegistryNamesAndCapabilities(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) { return Transport{}, nil }

	r.Register("zeta", noop)
	r.RegisterWithCapabilities("alpha", noop, Capabilities{Name: "alpha", SupportsAck: true, SupportsNack: true})

	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
	assert.True(t, r.Has("zeta"))
	assert.False(t, r.Has("omega"))

	assert.True(t, r.GetCapabilities("alpha").SupportsReliableDelivery())
	assert.Equal(t, Capabilities{Name: "zeta"}, r.GetCapabilities("zeta"))
}

func TestDefaultRegistryHelpers(t *testing.T) {
	original := DefaultRegistry
	defer func() { DefaultRegistry = original }()
	DefaultRegistry = NewRegistry()

	pub, sub := &mockPublisher{}, &mockSubscriber{}
	RegisterWithCapabilities("mock", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: pub, Subscriber: sub}, nil
	}, Capabilities{Name: "ignored", InProcess: true})

	tr, err := Build(context.Background(), &mockConfig{transport: "mock"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.True(t, GetCapabilities("mock").InProcess)
	assert.Equal(t, "mock", GetCapabilities("mock").Name)

	Register("mock", nil)
	assert.False(t, DefaultRegistry.Has("mock"))
	assert.Empty(t, DefaultRegistry.Names())
	assert.Equal(t, Capabilities{Name: "mock"}, GetCapabilities("mock"))
}

func TestRegistryRejectsIncompleteTransport(t *testing.T) {
	r := NewRegistry()
	pub := &mockPublisher{}
	r.Register("half", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: pub}, nil
	})

	_, err := r.Build(context.Background(), &mockConfig{transport: "half"}, nil)
	require.ErrorIs(t, err, ErrIncompleteTransport)
	assert.Contains(t, err.Error(), `"half"`)
	assert.Equal(t, 1, pub.closed)
}

func TestRegistryDescribe(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) { return Transport{}, nil }
	r.RegisterWithCapabilities("memory", noop, ChannelCapabilities)
	r.Register("bus", noop)

	assert.Equal(t, []Capabilities{
		{Name: "bus"},
		{Name: "memory", InProcess: true, SupportsOrdering: true, SupportsAck: true, SupportsNack: true},
	}, r.Describe())
}

func TestTransportClose(t *testing.T) {
	t.Run("closes both sides", func(t *testing.T) {
		pub := &mockPublisher{}
		sub := &mockSubscriber{}
		require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
		assert.Equal(t, 1, pub.closed)
		assert.Equal(t, 1, sub.closed)
	})

	t.Run("closes a shared pubsub once", func(t *testing.T) {
		ps := &mockPubSub{}
		require.NoError(t, Transport{Publisher: ps, Subscriber: ps}.Close())
		assert.Equal(t, 1, ps.mockPublisher.closed)
	})

	t.Run("joins errors", func(t *testing.T) {
		pub := &mockPublisher{closeFn: func() error { return errClose }}
		err := Transport{Publisher: pub, Subscriber: &mockSubscriber{}}.Close()
		assert.ErrorIs(t, err, errClose)
	})

	t.Run("zero value", func(t *testing.T) {
		assert.NoError(t, Transport{}.Close())
	})
}
