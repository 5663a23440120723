package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired     = sterrors.New("signalflow: configuration is required")
	ErrLoggerRequired     = sterrors.New("signalflow: logger is required")
	ErrNameRequired       = sterrors.New("signalflow: name is required")
	ErrInvalidName        = sterrors.New("signalflow: name contains an empty segment")
	ErrCircuitRequired    = sterrors.New("signalflow: circuit is required")
	ErrCircuitMismatch    = sterrors.New("signalflow: subscriber belongs to a different circuit")
	ErrCircuitClosed      = sterrors.New("signalflow: circuit is closed")
	ErrAwaitOnWorker      = sterrors.New("signalflow: await called from the circuit worker")
	ErrComposerRequired   = sterrors.New("signalflow: percept composer is required")
	ErrReceptorRequired   = sterrors.New("signalflow: receptor is required")
	ErrPipeRequired       = sterrors.New("signalflow: pipe is required")
	ErrSubscriberRequired = sterrors.New("signalflow: subscriber is required")
	ErrSubscriberClosed   = sterrors.New("signalflow: subscriber is closed")
	ErrRegistrarClosed    = sterrors.New("signalflow: registrar is closed after activation")
	ErrScopeClosed        = sterrors.New("signalflow: scope is closed")
	ErrCodecRequired      = sterrors.New("signalflow: codec is required")
	ErrPublisherRequired  = sterrors.New("signalflow: publisher is required")
	ErrSubscriberSource   = sterrors.New("signalflow: message subscriber is required")
	ErrTopicRequired      = sterrors.New("signalflow: topic is required")
	ErrPayloadTooLarge    = sterrors.New("signalflow: encoded payload exceeds the transport limit")
	ErrConduitRequired    = sterrors.New("signalflow: conduit is required")
	ErrMapperRequired     = sterrors.New("signalflow: mapper is required")
	ErrTapClosed          = sterrors.New("signalflow: tap is closed")
	ErrResourceRequired   = sterrors.New("signalflow: resource is required")
)

// ConfigValidationError reports an invalid Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "signalflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// PanicError carries a value recovered from a panicking receptor together
// with the stack of the worker at the time of the panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("signalflow: receptor panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
