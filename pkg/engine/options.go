package engine

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tetratelabs/wazero"
)

// EngineKind selects the wazero execution engine.
type EngineKind string

// Supported engines.
const (
	EngineAuto        EngineKind = "auto"
	EngineCompiler    EngineKind = "compiler"
	EngineInterpreter EngineKind = "interpreter"
)

// WASIParams describes the system interface context given to guests.
type WASIParams struct {
	// Args is the guest argv.
	Args []string
	// Env holds environment variables.
	Env map[string]string
	// PreopenedDirs are host directories mounted at the same guest path.
	PreopenedDirs []string
	// MapDirs maps guest paths to host directories.
	MapDirs map[string]string
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	wasi             *WASIParams
	cacheDir         string
	cache            wazero.CompilationCache
	engine           EngineKind
	memoryLimitPages uint32
	stdout           io.Writer
	stderr           io.Writer
}

// WithWASI sets the WASI context shared by every instance of the provider.
func WithWASI(params WASIParams) Option {
	return func(o *options) { o.wasi = &params }
}

// WithCompilationCacheDir persists compiled modules under dir.
func WithCompilationCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithCompilationCache shares cache between providers. The caller closes it.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(o *options) { o.cache = cache }
}

// WithEngine selects the execution engine.
func WithEngine(kind EngineKind) Option {
	return func(o *options) { o.engine = kind }
}

// WithMemoryLimitPages caps guest memory, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) { o.memoryLimitPages = pages }
}

// WithStdout sets the guest's stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr sets the guest's stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

func newOptions(opts []Option) *options {
	o := &options{engine: EngineAuto, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// runtimeConfig returns the runtime config and, when the cache was created here, the
// cache the provider must close.
func (o *options) runtimeConfig() (wazero.RuntimeConfig, wazero.CompilationCache, error) {
	var cfg wazero.RuntimeConfig
	switch o.engine {
	case "", EngineAuto:
		cfg = wazero.NewRuntimeConfig()
	case EngineCompiler:
		cfg = wazero.NewRuntimeConfigCompiler()
	case EngineInterpreter:
		cfg = wazero.NewRuntimeConfigInterpreter()
	default:
		return nil, nil, fmt.Errorf("unknown engine %q", o.engine)
	}

	var owned wazero.CompilationCache
	switch {
	case o.cache != nil:
		cfg = cfg.WithCompilationCache(o.cache)
	case o.cacheDir != "":
		cache, err := wazero.NewCompilationCacheWithDir(o.cacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
		cfg = cfg.WithCompilationCache(cache)
		owned = cache
	}

	if o.memoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.memoryLimitPages)
	}

	return cfg, owned, nil
}

// moduleConfig returns the guest config every instance is derived from.
func (o *options) moduleConfig() wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithStartFunctions(). // start exports are run by the provider.
		WithSysWalltime().
		WithSysNanotime().
		WithStdout(o.stdout).
		WithStderr(o.stderr)

	if o.wasi == nil {
		return cfg
	}

	if len(o.wasi.Args) > 0 {
		cfg = cfg.WithArgs(o.wasi.Args...)
	}

	keys := make([]string, 0, len(o.wasi.Env))
	for k := range o.wasi.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cfg = cfg.WithEnv(k, o.wasi.Env[k])
	}

	if len(o.wasi.PreopenedDirs) > 0 || len(o.wasi.MapDirs) > 0 {
		fsCfg := wazero.NewFSConfig()
		for _, dir := range o.wasi.PreopenedDirs {
			fsCfg = fsCfg.WithDirMount(dir, dir)
		}
		for guest, host := range o.wasi.MapDirs {
			fsCfg = fsCfg.WithDirMount(host, guest)
		}
		cfg = cfg.WithFSConfig(fsCfg)
	}

	return cfg
}
