package transport

// Capabilities describes what a transport backend guarantees to a bridge.
type Capabilities struct {
	Name      string `json:"name"`
	InProcess bool   `json:"in_process"`
	// SupportsOrdering means messages on one topic arrive in publish order,
	// so bridged emissions keep the per-producer order of the circuit.
	SupportsOrdering bool `json:"ordering"`
	SupportsAck      bool `json:"ack"`
	// SupportsNack means a nacked message is redelivered.
	SupportsNack bool `json:"nack"`
	Persistent   bool `json:"persistent"`
	// MaxMessageSize bounds an encoded emission in bytes; zero means unknown.
	MaxMessageSize int64 `json:"max_message_size,omitempty"`
}

// Fits reports whether a payload of n bytes can be published.
func (c Capabilities) Fits(n int) bool {
	return c.MaxMessageSize <= 0 || int64(n) <= c.MaxMessageSize
}

// SupportsReliableDelivery reports at-least-once delivery: ack and nack.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// ChannelCapabilities describes the in-process gochannel transport.
var ChannelCapabilities = Capabilities{
	Name:             "channel",
	InProcess:        true,
	SupportsOrdering: true,
	SupportsAck:      true,
	SupportsNack:     true,
}

// IOCapabilities describes the line-oriented file transport. Messages on a
// topic keep their order; nothing is acknowledged or redelivered.
var IOCapabilities = Capabilities{
	Name:             "io",
	SupportsOrdering: true,
	Persistent:       true,
}
