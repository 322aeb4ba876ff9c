package wapc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNoErrorMessage is reported when a guest call fails without setting an error.
	ErrNoErrorMessage = errors.New("no error message set for call failure")
	// ErrNoResponse is reported when a guest call succeeds without a response or error.
	ErrNoResponse = errors.New("no error message or response set for call success")
)

// GuestCallError carries the error a guest reported for an operation.
type GuestCallError struct {
	Operation string
	Message   string
}

// Error implements error.
func (e *GuestCallError) Error() string {
	return fmt.Sprintf("guest call %q failed: %s", e.Operation, e.Message)
}

// EngineProvider runs a guest module on behalf of a Host.
type EngineProvider interface {
	// Init builds the first instance and binds it to the host state.
	Init(ctx context.Context, host HostBinding) error
	// Call invokes the guest entry function with the operation and payload lengths.
	Call(ctx context.Context, operationLen, payloadLen int32) (int32, error)
	// Replace hot-swaps the running module for a new one.
	Replace(ctx context.Context, module []byte) error
	// Close releases the provider's resources.
	Close(ctx context.Context) error
}

// HostOption configures a Host.
type HostOption func(*hostOptions)

type hostOptions struct {
	logger Logger
	id     string
}

// WithLogger routes guest console output to fn instead of the global logger.
func WithLogger(fn Logger) HostOption {
	return func(o *hostOptions) { o.logger = fn }
}

// WithID sets the host identifier instead of a generated one.
func WithID(id string) HostOption {
	return func(o *hostOptions) { o.id = id }
}

// Host drives waPC calls into a single guest module.
type Host struct {
	state  *ModuleState
	engine EngineProvider
	mu     sync.Mutex
}

// NewHost initializes engine with a fresh binding and returns a Host ready for calls.
func NewHost(
	ctx context.Context,
	engine EngineProvider,
	handler HostCallHandler,
	opts ...HostOption,
) (*Host, error) {
	o := hostOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	state := NewModuleState(o.id, handler, o.logger)
	if err := engine.Init(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	return &Host{state: state, engine: engine}, nil
}

// ID returns the host identifier.
func (h *Host) ID() string {
	return h.state.ID()
}

// Call invokes operation on the guest and returns its response.
func (h *Host) Call(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state.reset(Invocation{Operation: operation, Payload: payload})

	result, err := h.engine.Call(ctx, int32(len(operation)), int32(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("guest call %q: %w", operation, err)
	}

	if result == 0 {
		if msg, ok := h.state.GuestError(); ok {
			return nil, &GuestCallError{Operation: operation, Message: msg}
		}

		return nil, fmt.Errorf("guest call %q: %w", operation, ErrNoErrorMessage)
	}

	if resp, ok := h.state.GuestResponse(); ok {
		return resp, nil
	}
	if msg, ok := h.state.GuestError(); ok {
		return nil, &GuestCallError{Operation: operation, Message: msg}
	}

	return nil, fmt.Errorf("guest call %q: %w", operation, ErrNoResponse)
}

// ReplaceModule hot-swaps the guest module; in-flight calls finish on the old module.
func (h *Host) ReplaceModule(ctx context.Context, module []byte) error {
	return h.engine.Replace(ctx, module)
}

// Close releases the underlying engine.
func (h *Host) Close(ctx context.Context) error {
	return h.engine.Close(ctx)
}
