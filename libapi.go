package signalflow

import (
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/signalflow/internal/runtime"
	bridgepkg "github.com/drblury/signalflow/internal/runtime/bridge"
	configpkg "github.com/drblury/signalflow/internal/runtime/config"
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	flowpkg "github.com/drblury/signalflow/internal/runtime/flow"
	idspkg "github.com/drblury/signalflow/internal/runtime/ids"
	"github.com/drblury/signalflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/signalflow/internal/runtime/logging"
	namepkg "github.com/drblury/signalflow/internal/runtime/name"
	scopepkg "github.com/drblury/signalflow/internal/runtime/scope"
	statepkg "github.com/drblury/signalflow/internal/runtime/state"
	transportpkg "github.com/drblury/signalflow/transport"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError
	PanicError            = errspkg.PanicError

	Cortex             = runtimepkg.Cortex
	CortexDependencies = runtimepkg.CortexDependencies
	CortexSnapshot     = runtimepkg.CortexSnapshot
	ResourceUsage      = runtimepkg.ResourceUsage

	Circuit       = runtimepkg.Circuit
	CircuitOption = runtimepkg.CircuitOption
	CircuitState  = runtimepkg.CircuitState
	CircuitStats  = runtimepkg.CircuitStats

	Subject      = runtimepkg.Subject
	Kind         = runtimepkg.Kind
	Subscription = runtimepkg.Subscription

	DeliveryHooks   = runtimepkg.DeliveryHooks
	DeliveryContext = runtimepkg.DeliveryContext
	Metrics         = runtimepkg.Metrics

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Name  = namepkg.Name
	State = statepkg.State
	Slot  = statepkg.Slot
	Scope = scopepkg.Scope

	CloserFunc = scopepkg.CloserFunc

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities

	BridgeOption = bridgepkg.Option
	OutletStats  = bridgepkg.OutletStats
	InletStats   = bridgepkg.InletStats
)

type (
	Pipe[E any]                 = runtimepkg.Pipe[E]
	Channel[E any]              = runtimepkg.Channel[E]
	Conduit[P, E any]           = runtimepkg.Conduit[P, E]
	Composer[P, E any]          = runtimepkg.Composer[P, E]
	Subscriber[E any]           = runtimepkg.Subscriber[E]
	Registrar[E any]            = runtimepkg.Registrar[E]
	Receptor[E any]             = runtimepkg.Receptor[E]
	Activation[E any]           = runtimepkg.Activation[E]
	Reservoir[E any]            = runtimepkg.Reservoir[E]
	Capture[E any]              = runtimepkg.Capture[E]
	Tap[T any]                  = runtimepkg.Tap[T]
	Cell[E any]                 = runtimepkg.Cell[E]
	Closure[R io.Closer]        = scopepkg.Closure[R]
	Operator[E any]             = flowpkg.Operator[E]
	Codec[E any]                = bridgepkg.Codec[E]
	JSONCodec[E any]            = bridgepkg.JSONCodec[E]
	ProtoCodec[E proto.Message] = bridgepkg.ProtoCodec[E]
	Outlet[E any]               = bridgepkg.Outlet[E]
	Inlet[E any]                = bridgepkg.Inlet[E]
)

const (
	CircuitOpen    = runtimepkg.CircuitOpen
	CircuitClosing = runtimepkg.CircuitClosing
	CircuitClosed  = runtimepkg.CircuitClosed

	KindCortex       = runtimepkg.KindCortex
	KindCircuit      = runtimepkg.KindCircuit
	KindConduit      = runtimepkg.KindConduit
	KindChannel      = runtimepkg.KindChannel
	KindPipe         = runtimepkg.KindPipe
	KindSubscriber   = runtimepkg.KindSubscriber
	KindSubscription = runtimepkg.KindSubscription
	KindReservoir    = runtimepkg.KindReservoir
	KindTap          = runtimepkg.KindTap
	KindCell         = runtimepkg.KindCell

	DefaultSpinCount = configpkg.DefaultSpinCount

	MetadataKeyCircuit   = bridgepkg.MetadataKeyCircuit
	MetadataKeyConduit   = bridgepkg.MetadataKeyConduit
	MetadataKeyChannel   = bridgepkg.MetadataKeyChannel
	MetadataKeySchema    = bridgepkg.MetadataKeySchema
	MetadataKeyEmittedAt = bridgepkg.MetadataKeyEmittedAt
)

var (
	NewCortex      = runtimepkg.NewCortex
	TryNewCortex   = runtimepkg.TryNewCortex
	NewCircuit     = runtimepkg.NewCircuit
	NewMetrics     = runtimepkg.NewMetrics
	ValidateConfig = configpkg.ValidateConfig
	FromEnv        = configpkg.FromEnv

	WithLogger    = runtimepkg.WithLogger
	WithHooks     = runtimepkg.WithHooks
	WithMetrics   = runtimepkg.WithMetrics
	WithTracer    = runtimepkg.WithTracer
	WithSpinCount = runtimepkg.WithSpinCount

	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	ParseName     = namepkg.Parse
	MustParseName = namepkg.MustParse
	NameOf        = namepkg.Of
	CompareNames  = namepkg.Compare

	EmptyState = statepkg.Empty
	NewState   = statepkg.New
	NewScope   = scopepkg.New

	BridgeLogger       = bridgepkg.WithLogger
	BridgeTracer       = bridgepkg.WithTracer
	BridgeTopicPrefix  = bridgepkg.WithTopicPrefix
	BridgeErrorHandler = bridgepkg.WithErrorHandler
	BridgeCapabilities = bridgepkg.WithCapabilities
	BridgeTopic        = bridgepkg.Topic

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities
	ErrIncompleteTransport   = transportpkg.ErrIncompleteTransport

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrNameRequired       = errspkg.ErrNameRequired
	ErrInvalidName        = errspkg.ErrInvalidName
	ErrCircuitRequired    = errspkg.ErrCircuitRequired
	ErrCircuitMismatch    = errspkg.ErrCircuitMismatch
	ErrCircuitClosed      = errspkg.ErrCircuitClosed
	ErrAwaitOnWorker      = errspkg.ErrAwaitOnWorker
	ErrComposerRequired   = errspkg.ErrComposerRequired
	ErrReceptorRequired   = errspkg.ErrReceptorRequired
	ErrPipeRequired       = errspkg.ErrPipeRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrSubscriberClosed   = errspkg.ErrSubscriberClosed
	ErrRegistrarClosed    = errspkg.ErrRegistrarClosed
	ErrScopeClosed        = errspkg.ErrScopeClosed
	ErrCodecRequired      = errspkg.ErrCodecRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberSource   = errspkg.ErrSubscriberSource
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrPayloadTooLarge    = errspkg.ErrPayloadTooLarge
	ErrConduitRequired    = errspkg.ErrConduitRequired
	ErrMapperRequired     = errspkg.ErrMapperRequired
	ErrTapClosed          = errspkg.ErrTapClosed
	ErrResourceRequired   = errspkg.ErrResourceRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewLogger            = loggingpkg.New
	NewLoggerFromConfig  = loggingpkg.NewLoggerFromConfig
	NopLogger            = loggingpkg.NopLogger

	CreateULID = idspkg.CreateULID
)

func NewPipe[E any](c *Circuit, n *Name, receptor Receptor[E]) (*Pipe[E], error) {
	return runtimepkg.NewPipe(c, n, receptor)
}

// DirectPipe returns a pipe that invokes receptor synchronously on the
// emitting goroutine.
func DirectPipe[E any](n *Name, receptor Receptor[E]) (*Pipe[E], error) {
	return runtimepkg.DirectPipe(n, receptor)
}

func NewConduit[P, E any](c *Circuit, n *Name, composer Composer[P, E]) (*Conduit[P, E], error) {
	return runtimepkg.NewConduit(c, n, composer)
}

func PipeComposer[E any]() Composer[*Pipe[E], E] {
	return runtimepkg.PipeComposer[E]()
}

func ChannelComposer[E any]() Composer[*Channel[E], E] {
	return runtimepkg.ChannelComposer[E]()
}

func NewSubscriber[E any](c *Circuit, n *Name, activation Activation[E]) (*Subscriber[E], error) {
	return runtimepkg.NewSubscriber(c, n, activation)
}

// FlowPipe returns a pipe on c that passes each value through ops before
// handing it to target.
func FlowPipe[E any](c *Circuit, n *Name, target *Pipe[E], ops ...Operator[E]) (*Pipe[E], error) {
	return flowpkg.Pipe(c, n, target, ops...)
}

// NewTap returns a view of src whose channels carry mapper's output.
func NewTap[P, E, T any](src *Conduit[P, E], n *Name, mapper func(E) T) (*Tap[T], error) {
	return runtimepkg.NewTap(src, n, mapper)
}

func NewCell[E any](c *Circuit, n *Name, receptor Receptor[E]) (*Cell[E], error) {
	return runtimepkg.NewCell(c, n, receptor)
}

func CellInput[I, E any](cell *Cell[E], fn func(I) E) (*Pipe[I], error) {
	return runtimepkg.CellInput(cell, fn)
}

// NewClosure registers r with s behind a single-use handle.
func NewClosure[R io.Closer](s *Scope, r R) (*Closure[R], error) {
	return scopepkg.NewClosure(s, r)
}

func Lookup[T any](s State, n *Name) (T, bool) {
	return statepkg.Lookup[T](s, n)
}

func NewOutlet[E any](c *Circuit, n *Name, publisher message.Publisher, codec Codec[E], opts ...BridgeOption) (*Outlet[E], error) {
	return bridgepkg.NewOutlet(c, n, publisher, codec, opts...)
}

// Attach subscribes the outlet to every channel of cd.
func Attach[P, E any](cd *Conduit[P, E], o *Outlet[E]) (*Subscription, error) {
	return bridgepkg.Attach(cd, o)
}

func NewInlet[E any](subscriber message.Subscriber, topic string, codec Codec[E], target *Pipe[E], opts ...BridgeOption) (*Inlet[E], error) {
	return bridgepkg.NewInlet(subscriber, topic, codec, target, opts...)
}
