// Package channel provides the in-memory watermill GoChannel transport. It is
// the default bridge transport and registers itself on import.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/signalflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// persistentConfig is implemented by configs that can ask the channel
// transport to replay published messages to late subscribers.
type persistentConfig interface {
	IsTransportPersistent() bool
}

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds the channel transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport. Each subscriber gets an output
// buffer of cfg.GetTransportBufferSize() messages. When cfg reports a
// persistent transport, messages published before an inlet subscribes are
// kept in memory and replayed to it.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	var gc gochannel.Config
	if cfg != nil {
		gc.OutputChannelBuffer = cfg.GetTransportBufferSize()
	}
	if p, ok := cfg.(persistentConfig); ok {
		gc.Persistent = p.IsTransportPersistent()
	}
	pub, sub := Factory(gc, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
