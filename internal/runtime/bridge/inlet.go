package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	runtimepkg "github.com/drblury/signalflow/internal/runtime"
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/signalflow/internal/runtime/logging"
)

// InletStats counts messages handled by an inlet.
type InletStats struct {
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
}

// Inlet consumes one topic and emits each decoded payload into a pipe.
// Messages that cannot be decoded are acked, counted as rejected and
// reported; they are never redelivered.
type Inlet[E any] struct {
	subscriber message.Subscriber
	topic      string
	codec      Codec[E]
	target     *runtimepkg.Pipe[E]
	opts       options

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewInlet creates an inlet feeding target from topic.
func NewInlet[E any](subscriber message.Subscriber, topic string, codec Codec[E], target *runtimepkg.Pipe[E], opts ...Option) (*Inlet[E], error) {
	if subscriber == nil {
		return nil, errspkg.ErrSubscriberSource
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if codec == nil {
		return nil, errspkg.ErrCodecRequired
	}
	if target == nil {
		return nil, errspkg.ErrPipeRequired
	}
	return &Inlet[E]{
		subscriber: subscriber,
		topic:      topic,
		codec:      codec,
		target:     target,
		opts:       newOptions(opts),
	}, nil
}

// Topic returns the consumed topic.
func (in *Inlet[E]) Topic() string { return in.topic }

// Stats returns the inlet's counters.
func (in *Inlet[E]) Stats() InletStats {
	return InletStats{Received: in.received.Load(), Rejected: in.rejected.Load()}
}

// Run subscribes and forwards messages until ctx is done or the subscriber
// closes the message channel. It blocks; run it on its own goroutine.
func (in *Inlet[E]) Run(ctx context.Context) error {
	msgs, err := in.subscriber.Subscribe(ctx, in.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", in.topic, err)
	}
	in.opts.logger.Debug("Inlet subscribed", loggingpkg.LogFields{"topic": in.topic})

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			in.consume(msg)
		}
	}
}

func (in *Inlet[E]) consume(msg *message.Message) {
	_, span := in.opts.tracer.Start(msg.Context(), "signalflow.bridge.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", in.topic),
			attribute.String("messaging.message.id", msg.UUID),
		))
	defer span.End()
	defer msg.Ack()

	v, err := in.codec.Decode(msg.Payload)
	if err != nil {
		in.rejected.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.opts.fail("Inlet rejected undecodable message", in.topic, err)
		return
	}
	in.target.Emit(v)
	in.received.Add(1)
}
