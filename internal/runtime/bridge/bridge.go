// Package bridge connects conduits to watermill. An Outlet publishes every
// emission of the channels it is subscribed to; an Inlet consumes a topic and
// emits the decoded payloads into a pipe.
package bridge

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	loggingpkg "github.com/drblury/signalflow/internal/runtime/logging"
	"github.com/drblury/signalflow/internal/runtime/name"
	transportpkg "github.com/drblury/signalflow/transport"
)

const tracerName = "github.com/drblury/signalflow/bridge"

// Metadata keys set on bridged messages.
const (
	MetadataKeyCircuit   = "signalflow_circuit"
	MetadataKeyConduit   = "signalflow_conduit"
	MetadataKeyChannel   = "signalflow_channel"
	MetadataKeySchema    = "signalflow_schema"
	MetadataKeyEmittedAt = "signalflow_emitted_at"
)

// Option configures an Outlet or Inlet.
type Option func(*options)

type options struct {
	logger  loggingpkg.ServiceLogger
	tracer  trace.Tracer
	prefix  string
	caps    transportpkg.Capabilities
	onError func(topic string, err error)
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = loggingpkg.NopLogger()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// WithLogger sets the logger used to report encode, publish and decode failures.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithTopicPrefix is prepended to channel paths to form outlet topics.
func WithTopicPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithCapabilities makes an outlet reject payloads the transport cannot
// carry instead of handing them to the publisher.
func WithCapabilities(caps transportpkg.Capabilities) Option {
	return func(o *options) { o.caps = caps }
}

// WithErrorHandler is called for every message that could not be encoded,
// published or decoded.
func WithErrorHandler(fn func(topic string, err error)) Option {
	return func(o *options) { o.onError = fn }
}

// Topic returns the topic an outlet with prefix publishes channel on.
func Topic(prefix string, channel *name.Name) string {
	return prefix + channel.Path()
}

func (o options) fail(msg, topic string, err error) {
	o.logger.Error(msg, err, loggingpkg.LogFields{"topic": topic})
	if o.onError != nil {
		o.onError(topic, err)
	}
}
