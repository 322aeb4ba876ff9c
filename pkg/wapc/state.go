package wapc

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Invocation is a pending guest request.
type Invocation struct {
	Operation string
	Payload   []byte
}

// HostCallHandler serves __host_call requests made by a guest.
type HostCallHandler func(ctx context.Context, binding, namespace, operation string, payload []byte) ([]byte, error)

// Logger receives guest console output.
type Logger func(hostID, msg string)

// HostBinding is the per-host state consulted by host functions while a guest runs.
type HostBinding interface {
	// GuestRequest returns the pending invocation, if any.
	GuestRequest() (Invocation, bool)
	// SetGuestResponse stores the guest's response payload.
	SetGuestResponse(payload []byte)
	// SetGuestError stores the guest's error message.
	SetGuestError(msg string)
	// HostResponse returns the last host call response.
	HostResponse() ([]byte, bool)
	// HostError returns the last host call error.
	HostError() (string, bool)
	// DoHostCall runs a guest-initiated host call and returns 1 on success, 0 on failure.
	DoHostCall(ctx context.Context, binding, namespace, operation string, payload []byte) int32
	// ConsoleLog records a guest console message.
	ConsoleLog(msg string)
}

var errNoHandler = errors.New("no host call handler registered")

// ModuleState is the HostBinding used by Host.
type ModuleState struct {
	id      string
	handler HostCallHandler
	logger  Logger

	mu            sync.Mutex
	guestRequest  *Invocation
	guestResponse []byte
	guestError    *string
	hostResponse  []byte
	hostError     *string
}

// NewModuleState returns an empty state for the host identified by id.
func NewModuleState(id string, handler HostCallHandler, logger Logger) *ModuleState {
	return &ModuleState{id: id, handler: handler, logger: logger}
}

// ID returns the owning host's identifier.
func (s *ModuleState) ID() string {
	return s.id
}

// reset clears all request and response slots ahead of a new invocation.
func (s *ModuleState) reset(inv Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guestRequest = &inv
	s.guestResponse = nil
	s.guestError = nil
	s.hostResponse = nil
	s.hostError = nil
}

// GuestRequest implements HostBinding.
func (s *ModuleState) GuestRequest() (Invocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.guestRequest == nil {
		return Invocation{}, false
	}

	return *s.guestRequest, true
}

// SetGuestResponse implements HostBinding.
func (s *ModuleState) SetGuestResponse(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guestResponse = payload
}

// GuestResponse returns the guest's response payload, if one was set.
func (s *ModuleState) GuestResponse() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guestResponse, s.guestResponse != nil
}

// SetGuestError implements HostBinding.
func (s *ModuleState) SetGuestError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guestError = &msg
}

// GuestError returns the guest's error message, if one was set.
func (s *ModuleState) GuestError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.guestError == nil {
		return "", false
	}

	return *s.guestError, true
}

// HostResponse implements HostBinding.
func (s *ModuleState) HostResponse() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hostResponse, s.hostResponse != nil
}

// HostError implements HostBinding.
func (s *ModuleState) HostError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hostError == nil {
		return "", false
	}

	return *s.hostError, true
}

// DoHostCall implements HostBinding.
func (s *ModuleState) DoHostCall(
	ctx context.Context,
	binding, namespace, operation string,
	payload []byte,
) int32 {
	s.mu.Lock()
	s.hostResponse = nil
	s.hostError = nil
	s.mu.Unlock()

	// the handler runs without the lock so it may re-enter the state.
	var (
		resp []byte
		err  error
	)
	if s.handler == nil {
		err = errNoHandler
	} else {
		resp, err = s.handler(ctx, binding, namespace, operation, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		msg := err.Error()
		s.hostError = &msg
		log.Debug().
			Str("event", "host_call_failed").
			Str("host_id", s.id).
			Str("binding", binding).
			Str("namespace", namespace).
			Str("operation", operation).
			Err(err).
			Msg("host call returned an error")

		return 0
	}

	if resp == nil {
		resp = []byte{}
	}
	s.hostResponse = resp

	return 1
}

// ConsoleLog implements HostBinding.
func (s *ModuleState) ConsoleLog(msg string) {
	if s.logger != nil {
		s.logger(s.id, msg)
		return
	}

	log.Info().
		Str("source", "wasm").
		Str("host_id", s.id).
		Msg(msg)
}
