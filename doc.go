// Package signalflow is an in-process signal routing library. A Circuit runs
// every receptor on a single worker goroutine, so producers on any goroutine
// can emit without locks while the state touched by receptors stays
// single-threaded.
//
// Conduits organise emissions into named channels. Each channel gets a percept
// (usually a Pipe) on first use, and every Subscriber attached to the conduit is
// activated once per channel to register the receptors that should see its
// values. Emissions made from inside a receptor are delivered before any value
// that arrives from outside the circuit, which keeps feedback loops ordered.
//
// # Cortex
//
// Cortex shares named circuits across an application and closes all of them,
// together with any scoped resources, when the application stops. When enabled
// in Config it serves Prometheus metrics and a JSON snapshot of circuit
// statistics.
//
// # Bridging
//
// Outlets publish channel emissions to a watermill Publisher and Inlets feed
// messages from a watermill Subscriber back into a pipe. JSONCodec and
// ProtoCodec cover the common payload formats. The in-process "channel"
// transport is registered by default; others can be added with
// RegisterTransport.
package signalflow
