package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
)

type mockConfig struct {
	transport string
	buffer    int64
}

func (m *mockConfig) EffectiveTransport() string    { return m.transport }
func (m *mockConfig) GetTransportBufferSize() int64 { return m.buffer }

type mockPublisher struct {
	closed  int
	closeFn func() error
}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error {
	return nil
}

func (m *mockPublisher) Close() error {
	m.closed++
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

type mockSubscriber struct {
	closed int
}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}

func (m *mockSubscriber) Close() error {
	m.closed++
	return nil
}

type mockPubSub struct {
	mockPublisher
	mockSubscriber
}

func (m *mockPubSub) Close() error {
	m.mockPublisher.closed++
	return nil
}

var errClose = errors.New("close failed")
