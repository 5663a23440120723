package runtime

import (
	"time"

	loggingpkg "github.com/drblury/signalflow/internal/runtime/logging"
)

// DeliveryContext describes where an emission was being delivered when a hook
// fired.
type DeliveryContext struct {
	// Circuit is the path of the circuit's name, or its subject id.
	Circuit string
	// Conduit and Channel are empty for emissions sent straight to a
	// circuit or a pipe.
	Conduit string
	Channel string
	// Subscriber is set for activation hooks.
	Subscriber string
	// Value is the emission being delivered.
	Value any
	// At is when the hook fired.
	At time.Time
}

// DeliveryHooks observe the circuit's delivery path.
// All hooks are optional; they run on the circuit worker (OnDrop runs on the
// emitting goroutine) and must not block.
type DeliveryHooks struct {
	// OnActivate is called after a subscriber's activation callback has run
	// for a channel.
	OnActivate func(ctx DeliveryContext)

	// OnFailure is called when a receptor or activation callback panics. The
	// error is a *errors.PanicError.
	OnFailure func(ctx DeliveryContext, err error)

	// OnDrop is called for emissions offered to a closed circuit.
	OnDrop func(ctx DeliveryContext)
}

// Merge combines two DeliveryHooks; other's hooks run after h's.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnActivate: chainContextHooks(h.OnActivate, other.OnActivate),
		OnFailure:  chainFailureHooks(h.OnFailure, other.OnFailure),
		OnDrop:     chainContextHooks(h.OnDrop, other.OnDrop),
	}
}

func chainContextHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainFailureHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks returns hooks that log activations at debug level and
// failures and drops at error level.
func LoggingHooks(logger loggingpkg.ServiceLogger) DeliveryHooks {
	return DeliveryHooks{
		OnActivate: func(ctx DeliveryContext) {
			logger.Debug("Subscriber activated", loggingpkg.LogFields{
				"circuit":    ctx.Circuit,
				"conduit":    ctx.Conduit,
				"channel":    ctx.Channel,
				"subscriber": ctx.Subscriber,
			})
		},
		OnFailure: func(ctx DeliveryContext, err error) {
			logger.Error("Delivery failed", err, loggingpkg.LogFields{
				"circuit":    ctx.Circuit,
				"conduit":    ctx.Conduit,
				"channel":    ctx.Channel,
				"subscriber": ctx.Subscriber,
			})
		},
		OnDrop: func(ctx DeliveryContext) {
			logger.Error("Emission dropped by closed circuit", nil, loggingpkg.LogFields{
				"circuit": ctx.Circuit,
				"conduit": ctx.Conduit,
				"channel": ctx.Channel,
			})
		},
	}
}

// MetricsHooks returns hooks that forward each event to a counter callback.
func MetricsHooks(onActivate, onFailure, onDrop func(circuit, channel string)) DeliveryHooks {
	call := func(fn func(string, string)) func(DeliveryContext) {
		if fn == nil {
			return nil
		}
		return func(ctx DeliveryContext) { fn(ctx.Circuit, ctx.Channel) }
	}
	hooks := DeliveryHooks{
		OnActivate: call(onActivate),
		OnDrop:     call(onDrop),
	}
	if onFailure != nil {
		hooks.OnFailure = func(ctx DeliveryContext, _ error) { onFailure(ctx.Circuit, ctx.Channel) }
	}
	return hooks
}

// AlertingHooks returns hooks that trigger alertFunc on delivery failures.
func AlertingHooks(alertFunc func(ctx DeliveryContext, err error)) DeliveryHooks {
	return DeliveryHooks{
		OnFailure: alertFunc,
	}
}
