// Package modules serves a directory of waPC guest modules and hot-swaps them on reload.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
)

// ErrUnknownModule is returned for calls to a module that is not loaded.
var ErrUnknownModule = errors.New("unknown module")

// Option configures a Manager.
type Option func(*Manager)

// WithHostCallHandler serves guest host calls with fn instead of the default router.
func WithHostCallHandler(fn wapc.HostCallHandler) Option {
	return func(m *Manager) { m.handler = fn }
}

// WithEngineOptions sets the options every provider is created with.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(m *Manager) { m.engineOpts = opts }
}

// WithCacheDir persists compiled modules under dir.
func WithCacheDir(dir string) Option {
	return func(m *Manager) { m.cacheDir = dir }
}

// Manager loads every module in a directory into its own host pool.
type Manager struct {
	dir        string
	poolSize   int
	handler    wapc.HostCallHandler
	engineOpts []engine.Option
	cacheDir   string
	cache      wazero.CompilationCache
	registry   *Registry
	now        func() time.Time

	mu    sync.RWMutex
	pools map[string]*wapc.HostPool
}

// NewManager returns a Manager for dir with at most poolSize hosts per module.
func NewManager(dir string, poolSize int, opts ...Option) (*Manager, error) {
	m := &Manager{
		dir:      dir,
		poolSize: poolSize,
		handler:  NewRouter().HostCall,
		registry: NewRegistry(),
		now:      time.Now,
		pools:    make(map[string]*wapc.HostPool),
	}
	for _, opt := range opts {
		opt(m)
	}

	// one cache is shared by every provider of every module.
	if m.cacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(m.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
		m.cache = cache
	} else {
		m.cache = wazero.NewCompilationCache()
	}

	return m, nil
}

// Dir returns the module directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Registry returns the metadata of the loaded modules.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// LoadAll loads every module in the directory. A module that fails to load is logged
// and skipped.
func (m *Manager) LoadAll(ctx context.Context) error {
	_, err := m.Reload(ctx)
	return err
}

// ReloadReport lists what a reload changed.
type ReloadReport struct {
	Added   []string
	Swapped []string
	Removed []string
	Failed  []string
}

// Reload re-reads the directory. Changed modules are hot-swapped in their pools, new
// modules get a pool and removed modules are closed. A module whose new version fails to
// load keeps serving its previous version.
func (m *Manager) Reload(ctx context.Context) (ReloadReport, error) {
	var report ReloadReport

	files, err := readDir(m.dir)
	if err != nil {
		return report, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range sortedKeys(files) {
		f := files[name]
		prev, loaded := m.registry.Get(name)

		switch {
		case !loaded:
			pool, err := m.newPool(ctx, f)
			if err != nil {
				logLoadFailure(name, err)
				report.Failed = append(report.Failed, name)

				continue
			}
			m.pools[name] = pool
			f.info.LoadedAt = m.now()
			m.registry.Register(f.info)
			report.Added = append(report.Added, name)
			log.Info().Str("event", "module_loaded").Str("module", name).Str("digest", f.info.Digest).Msg("loaded wasm module")
		case prev.Digest != f.info.Digest:
			if err := m.pools[name].ReplaceModule(ctx, f.code); err != nil {
				logLoadFailure(name, err)
				report.Failed = append(report.Failed, name)

				continue
			}
			m.registry.Swapped(name, f.info.Digest, f.info.Size, m.now())
			report.Swapped = append(report.Swapped, name)
			log.Info().Str("event", "module_swapped").Str("module", name).Str("digest", f.info.Digest).Msg("hot-swapped wasm module")
		}
	}

	for _, info := range m.registry.List() {
		if _, ok := files[info.Name]; ok {
			continue
		}
		if err := m.pools[info.Name].Close(ctx); err != nil {
			log.Error().Err(err).Str("module", info.Name).Msg("failed to close module pool")
		}
		delete(m.pools, info.Name)
		m.registry.Remove(info.Name)
		report.Removed = append(report.Removed, info.Name)
		log.Info().Str("event", "module_removed").Str("module", info.Name).Msg("unloaded wasm module")
	}

	return report, nil
}

// newPool creates a pool for f and starts one host to prove the module links.
func (m *Manager) newPool(ctx context.Context, f moduleFile) (*wapc.HostPool, error) {
	opts := append(append([]engine.Option{}, m.engineOpts...), engine.WithCompilationCache(m.cache))
	name := f.info.Name
	code := f.code

	pool := wapc.NewHostPool(m.poolSize, func(ctx context.Context) (*wapc.Host, error) {
		p, err := engine.New(ctx, code, opts...)
		if err != nil {
			return nil, err
		}

		h, err := wapc.NewHost(ctx, p, m.handler, wapc.WithID(name+"-"+uuid.NewString()))
		if err != nil {
			_ = p.Close(ctx)
			return nil, err
		}

		return h, nil
	})

	h, err := pool.Get(ctx)
	if err != nil {
		_ = pool.Close(ctx)
		return nil, err
	}
	pool.Put(h)

	return pool, nil
}

// Execute invokes operation on module.
func (m *Manager) Execute(ctx context.Context, module, operation string, payload []byte) ([]byte, error) {
	m.mu.RLock()
	pool, ok := m.pools[module]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}

	return pool.Call(ctx, operation, payload)
}

// Modules returns the names of the loaded modules.
func (m *Manager) Modules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedKeys(m.pools)
}

// Close closes every pool and the compilation cache.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, pool := range m.pools {
		errs = append(errs, pool.Close(ctx))
		m.registry.Remove(name)
	}
	m.pools = make(map[string]*wapc.HostPool)
	errs = append(errs, m.cache.Close(ctx))

	return errors.Join(errs...)
}

func logLoadFailure(name string, err error) {
	log.Error().
		Str("event", "module_load_failed").
		Str("module", name).
		Err(err).
		Msg("failed to load wasm module")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
