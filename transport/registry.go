package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	// ErrConfigRequired is returned by Build when no config is given.
	ErrConfigRequired = errors.New("signalflow: transport config is required")
	// ErrIncompleteTransport is returned by Build when a builder does not
	// produce both a publisher and a subscriber.
	ErrIncompleteTransport = errors.New("signalflow: transport needs a publisher and a subscriber")
)

// Registry maps transport names to builders and, optionally, to the
// capabilities a bridge can rely on.
type Registry struct {
	mu           sync.RWMutex
	builders     map[string]Builder
	capabilities map[string]Capabilities
}

// DefaultRegistry is the global transport registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new transport registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:     make(map[string]Builder),
		capabilities: make(map[string]Capabilities),
	}
}

// Register installs builder under name, replacing any earlier builder. A nil
// builder removes the transport.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if builder == nil {
		delete(r.builders, name)
		delete(r.capabilities, name)
		return
	}
	r.builders[name] = builder
}

// RegisterWithCapabilities installs builder and records caps for it. caps.Name
// is forced to name.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.Register(name, builder)
	if builder == nil {
		return
	}
	caps.Name = name
	r.mu.Lock()
	r.capabilities[name] = caps
	r.mu.Unlock()
}

// GetCapabilities returns what was recorded for name, or a Capabilities
// carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates the transport named by cfg.EffectiveTransport(). A bridge
// needs both halves, so a builder returning only one of them fails with
// ErrIncompleteTransport and the half it did return is closed.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.EffectiveTransport()
	r.mu.RLock()
	builder := r.builders[name]
	r.mu.RUnlock()
	if builder == nil {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}

	tr, err := builder(ctx, cfg, logger.With(watermill.LogFields{"transport": name}))
	if err != nil {
		return Transport{}, fmt.Errorf("build transport %q: %w", name, err)
	}
	if tr.Publisher == nil || tr.Subscriber == nil {
		return Transport{}, errors.Join(fmt.Errorf("build transport %q: %w", name, ErrIncompleteTransport), tr.Close())
	}
	return tr, nil
}

// Describe returns the capabilities of every transport that has a builder,
// ordered by name.
func (r *Registry) Describe() []Capabilities {
	names := r.Names()
	out := make([]Capabilities, 0, len(names))
	for _, name := range names {
		out = append(out, r.GetCapabilities(name))
	}
	return out
}

// Names returns the registered transport names in sorted order. Names
// registered with a nil builder are skipped.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.builders))
	for name, b := range r.builders {
		if b != nil {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Has reports whether name can be built.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builders[name] != nil
}

// Register installs builder in DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities installs builder and caps in DefaultRegistry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// GetCapabilities looks name up in DefaultRegistry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}

// Build builds from DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
