package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	runtimepkg "github.com/drblury/signalflow/internal/runtime"
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	idspkg "github.com/drblury/signalflow/internal/runtime/ids"
	"github.com/drblury/signalflow/internal/runtime/name"
	"github.com/drblury/signalflow/internal/runtime/state"
)

// OutletStats counts messages handled by an outlet.
type OutletStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// Outlet publishes emissions onto a watermill publisher. It is a subscriber:
// every channel it is activated on gets a receptor that encodes each emission
// and publishes it to the channel's topic. Publishing happens on the circuit
// worker.
type Outlet[E any] struct {
	publisher  message.Publisher
	codec      Codec[E]
	opts       options
	subscriber *runtimepkg.Subscriber[E]

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewOutlet creates an outlet whose subscriber belongs to c.
func NewOutlet[E any](c *runtimepkg.Circuit, n *name.Name, publisher message.Publisher, codec Codec[E], opts ...Option) (*Outlet[E], error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if codec == nil {
		return nil, errspkg.ErrCodecRequired
	}
	o := &Outlet[E]{
		publisher: publisher,
		codec:     codec,
		opts:      newOptions(opts),
	}
	sub, err := runtimepkg.NewSubscriber[E](c, n, o.activate)
	if err != nil {
		return nil, err
	}
	o.subscriber = sub
	return o, nil
}

// Attach subscribes the outlet to every channel of cd.
func Attach[P, E any](cd *runtimepkg.Conduit[P, E], o *Outlet[E]) (*runtimepkg.Subscription, error) {
	return cd.Subscribe(o.subscriber)
}

// Subscriber returns the outlet's subscriber, for use with Conduit.Subscribe.
func (o *Outlet[E]) Subscriber() *runtimepkg.Subscriber[E] { return o.subscriber }

// Stats returns the outlet's counters.
func (o *Outlet[E]) Stats() OutletStats {
	return OutletStats{Published: o.published.Load(), Failed: o.failed.Load()}
}

// Close stops publishing. Subscriptions made with the outlet are closed.
func (o *Outlet[E]) Close() error {
	return o.subscriber.Close()
}

func (o *Outlet[E]) activate(channel *runtimepkg.Subject, reg *runtimepkg.Registrar[E]) {
	topic := o.opts.prefix + channel.Path()
	md := o.metadata(channel)
	_ = reg.Register(func(v E) { o.publish(topic, md, v) })
}

// metadata is computed once per channel: the channel's state, then the
// names of the enclosing subjects and the payload schema.
func (o *Outlet[E]) metadata(channel *runtimepkg.Subject) message.Metadata {
	md := state.ToWatermill(channel.State)
	md.Set(MetadataKeyChannel, channel.Path())
	for s := channel.Enclosure; s != nil; s = s.Enclosure {
		switch s.Kind {
		case runtimepkg.KindConduit:
			md.Set(MetadataKeyConduit, s.Path())
		case runtimepkg.KindCircuit:
			md.Set(MetadataKeyCircuit, s.Path())
		}
	}
	md.Set(MetadataKeySchema, o.codec.Schema())
	return md
}

func (o *Outlet[E]) publish(topic string, md message.Metadata, v E) {
	ctx, span := o.opts.tracer.Start(context.Background(), "signalflow.bridge.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination.name", topic)))
	defer span.End()

	payload, err := o.codec.Encode(v)
	if err != nil {
		o.reject(span, topic, fmt.Errorf("encode: %w", err))
		return
	}
	if !o.opts.caps.Fits(len(payload)) {
		o.reject(span, topic, fmt.Errorf("%w: %d > %d bytes", errspkg.ErrPayloadTooLarge, len(payload), o.opts.caps.MaxMessageSize))
		return
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = make(message.Metadata, len(md)+1)
	for k, val := range md {
		msg.Metadata[k] = val
	}
	msg.Metadata.Set(MetadataKeyEmittedAt, time.Now().UTC().Format(time.RFC3339Nano))
	msg.SetContext(ctx)
	span.SetAttributes(attribute.String("messaging.message.id", msg.UUID))

	if err := o.publisher.Publish(topic, msg); err != nil {
		o.reject(span, topic, fmt.Errorf("publish: %w", err))
		return
	}
	o.published.Add(1)
}

func (o *Outlet[E]) reject(span trace.Span, topic string, err error) {
	o.failed.Add(1)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.opts.fail("Outlet failed to publish emission", topic, err)
}
