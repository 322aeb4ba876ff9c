package modules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrHostCallRejected is returned to guests calling a namespace nobody serves.
var ErrHostCallRejected = errors.New("host call rejected")

// LogNamespace is served by every router: operations debug, info, warn and error log the
// payload at that level.
const LogNamespace = "log"

// Router dispatches guest host calls by namespace.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]wapc.HostCallHandler
}

// NewRouter returns a router serving the log namespace.
func NewRouter() *Router {
	r := &Router{handlers: make(map[string]wapc.HostCallHandler)}
	r.Handle(LogNamespace, logHandler)

	return r
}

// Handle registers fn for namespace, replacing any previous handler.
func (r *Router) Handle(namespace string, fn wapc.HostCallHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[namespace] = fn
}

// HostCall implements wapc.HostCallHandler.
func (r *Router) HostCall(
	ctx context.Context,
	binding, namespace, operation string,
	payload []byte,
) ([]byte, error) {
	r.mu.RLock()
	fn, ok := r.handlers[namespace]
	r.mu.RUnlock()

	if !ok {
		log.Warn().
			Str("event", "host_call_rejected").
			Str("binding", binding).
			Str("namespace", namespace).
			Str("operation", operation).
			Msg("no handler for host call namespace")

		return nil, fmt.Errorf("%w: namespace %q", ErrHostCallRejected, namespace)
	}

	return fn(ctx, binding, namespace, operation, payload)
}

func logHandler(_ context.Context, binding, _, operation string, payload []byte) ([]byte, error) {
	level, err := zerolog.ParseLevel(operation)
	if err != nil || level < zerolog.DebugLevel || level > zerolog.ErrorLevel {
		return nil, fmt.Errorf("%w: unknown log level %q", ErrHostCallRejected, operation)
	}

	log.WithLevel(level).
		Str("event", "guest_log").
		Str("binding", binding).
		Msg(string(payload))

	return nil, nil
}
