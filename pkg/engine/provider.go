package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Provider runs one waPC guest module and supports hot-swapping it.
type Provider struct {
	runtime      wazero.Runtime
	cache        wazero.CompilationCache // owned; nil when shared or absent.
	wasi         map[string]api.Module
	moduleConfig wazero.ModuleConfig

	mu     sync.RWMutex
	module []byte
	inst   *instance
	host   wapc.HostBinding
	closed bool

	// callMu serializes guest execution; an instance runs one call at a time.
	callMu sync.Mutex
}

var _ wapc.EngineProvider = (*Provider)(nil)

// New creates a provider for module. The runtime, WASI host modules and guest config are
// built here once and shared by every instance the provider creates.
func New(ctx context.Context, module []byte, opts ...Option) (*Provider, error) {
	o := newOptions(opts)

	cfg, cache, err := o.runtimeConfig()
	if err != nil {
		return nil, err
	}

	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	wasi, err := instantiateWASI(ctx, r)
	if err != nil {
		_ = r.Close(ctx)
		if cache != nil {
			_ = cache.Close(ctx)
		}

		return nil, err
	}

	return &Provider{
		runtime:      r,
		cache:        cache,
		wasi:         wasi,
		moduleConfig: o.moduleConfig(),
		module:       append([]byte(nil), module...),
	}, nil
}

// Init builds the first instance and binds it to host. It may be called once.
func (p *Provider) Init(ctx context.Context, host wapc.HostBinding) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return ErrClosed
	case p.inst != nil:
		return ErrAlreadyInitialized
	}

	inst, err := p.newInstance(ctx, p.module, host)
	if err != nil {
		return err
	}

	p.inst = inst
	p.host = host
	log.Debug().
		Str("event", "provider_initialized").
		Str("instance", inst.name).
		Int("imports", len(inst.imports)).
		Msg("guest module initialized")

	return nil
}

// Call invokes the guest entry function. A guest failure is recorded on the host binding
// and reported as a 0 result with a nil error.
func (p *Provider) Call(ctx context.Context, operationLen, payloadLen int32) (int32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.inst == nil {
		if p.closed {
			return 0, ErrClosed
		}

		return 0, ErrNotInitialized
	}

	p.callMu.Lock()
	defer p.callMu.Unlock()

	result, err := p.inst.invoke(ctx, operationLen, payloadLen)
	if err != nil {
		log.Error().
			Str("event", "guest_call_failed").
			Str("instance", p.inst.name).
			Err(err).
			Msg("failure invoking guest module handler")
		p.host.SetGuestError(err.Error())

		return 0, nil
	}

	return result, nil
}

// Replace builds a complete instance from module and swaps it in for the running one.
// On failure the running instance is left untouched.
func (p *Provider) Replace(ctx context.Context, module []byte) error {
	p.mu.RLock()
	host, closed := p.host, p.closed
	p.mu.RUnlock()

	switch {
	case closed:
		return ErrClosed
	case host == nil:
		return ErrNotInitialized
	}

	log.Info().
		Str("event", "hot_swap").
		Int("bytes", len(module)).
		Msg("replacing existing WebAssembly module")

	next, err := p.newInstance(ctx, module, host)
	if err != nil {
		return fmt.Errorf("hot swap failed: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		next.close(ctx)

		return ErrClosed
	}
	prev := p.inst
	p.inst = next
	p.module = append([]byte(nil), module...)
	p.mu.Unlock()

	// No call can hold prev any more: calls keep the read lock while running.
	prev.close(ctx)

	log.Info().
		Str("event", "hot_swap_done").
		Str("previous", prev.name).
		Str("instance", next.name).
		Msg("WebAssembly module replaced")

	return nil
}

// Imports returns the resolved import table of the running instance.
func (p *Provider) Imports() []Import {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.inst == nil {
		return nil
	}

	return append([]Import(nil), p.inst.imports...)
}

// Module returns a copy of the bytes of the running module.
func (p *Provider) Module() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]byte(nil), p.module...)
}

// Close releases the running instance and the runtime.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.inst != nil {
		p.inst.close(ctx)
		p.inst = nil
	}

	err := p.runtime.Close(ctx)
	if p.cache != nil {
		err = errors.Join(err, p.cache.Close(ctx))
	}

	return err
}

// Report describes how a module would be linked by a provider.
type Report struct {
	Imports []Import
	Exports []string
	// HasEntry reports whether the entry export exists with the right signature.
	HasEntry bool
	// Starts lists the declared start exports in the order they would run.
	Starts []string
}

// Inspect compiles module and resolves its imports without running any guest code.
func Inspect(ctx context.Context, module []byte, opts ...Option) (*Report, error) {
	p, err := New(ctx, module, opts...)
	if err != nil {
		return nil, err
	}
	defer p.Close(ctx)

	compiled, err := p.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	defer compiled.Close(ctx)

	imports, err := resolveImports(compiled, module, p.wasi)
	if err != nil {
		return nil, err
	}

	report := &Report{Imports: imports}
	exports := compiled.ExportedFunctions()
	for name := range exports {
		report.Exports = append(report.Exports, name)
	}
	sort.Strings(report.Exports)

	if def, ok := exports[wapc.GuestCall]; ok {
		report.HasEntry = slices.Equal(def.ParamTypes(), entryParams) &&
			slices.Equal(def.ResultTypes(), entryResults)
	}
	for _, name := range wapc.RequiredStarts {
		if _, ok := exports[name]; ok {
			report.Starts = append(report.Starts, name)
		}
	}

	return report, nil
}
