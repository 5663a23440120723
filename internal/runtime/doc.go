/*
Package runtime provides the circuit execution engine and the typed
conduit layer built on top of it.

# Architecture Overview

A Circuit owns a single worker goroutine and two queues. Producers on any
goroutine append to the ingress queue; emissions made from the worker itself
(receptors emitting further values) go to the transit queue, which is drained
before the next ingress item. Every receptor therefore runs on one goroutine
and never needs its own locking.

# Package Structure

## Circuit (circuit.go, ingress.go, transit.go, goid.go)

The Circuit struct wires together:
  - A lock-free multi-producer ingress queue made of fixed-size chunks
  - A worker-only transit queue for cascading emissions
  - Spin-then-park idling controlled by SpinCount
  - Await, which blocks until everything enqueued before it has run
  - Close, which drains queued work and drops later emissions

## Pipes and Conduits (pipe.go, conduit.go, channel.go)

A Pipe is the typed handle producers emit through. A Conduit lazily creates
one percept per Name, composed from a Channel, and routes every channel
emission to the subscriptions registered on the conduit.

## Subscribers (subscriber.go, registrar.go, subscription.go, reservoir.go)

A Subscriber's activation runs once per channel on the worker. It receives
a Registrar through which it attaches receptors or pipes; the registrar is
closed as soon as the activation returns. Subscriptions can be closed at any
time and take effect on the worker. A Reservoir is a subscriber that buffers
every emission for later inspection.

## Taps and Cells (tap.go, cell.go)

A Tap mirrors every channel of a source conduit through a mapping function
into channels of its own. A Cell is a tree of components: a value emitted
into a child is observed by the cell's subscribers and then bubbles up to the
root receptor.

## Cortex (cortex.go, introspection.go, resources.go)

Cortex is the root that shares named circuits, closes everything through a
root Scope, and optionally serves Prometheus metrics and a JSON snapshot of
every circuit at /api/circuits.

## Hooks & Metrics (hooks.go, metrics.go, stats.go)

DeliveryHooks report activations, receptor failures and dropped emissions.
Metrics exports per-circuit Prometheus counters and an await latency
histogram.

# Sub-packages

  - bridge: Outlets and inlets that carry channel emissions over watermill
  - config: Configuration loading and validation
  - errors: Sentinel errors and error types
  - flow: Composable operators placed in front of a pipe
  - ids: ULID generation
  - jsoncodec: JSON encoding via sonic
  - logging: Logger abstractions
  - name: Interned hierarchical names
  - scope: Nested resource lifetimes
  - state: Immutable name/value slots

# Thread Safety

Circuit, Pipe, Conduit, Subscriber and Subscription are safe for concurrent
use. Receptors and activations always run on their circuit's worker.
*/
package runtime
