package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/andrei-cloud/go_wapc/internal/wasmtest"
	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	i32x1 = []byte{wasmtest.I32}
	i32x2 = []byte{wasmtest.I32, wasmtest.I32}
)

// newProvider returns an initialized provider bound to a fresh module state.
func newProvider(t *testing.T, module []byte) (*engine.Provider, *wapc.ModuleState) {
	t.Helper()

	ctx := context.Background()
	p, err := engine.New(ctx, module, engine.WithEngine(engine.EngineInterpreter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(ctx) })

	state := wapc.NewModuleState("test", nil, nil)
	require.NoError(t, p.Init(ctx, state))

	return p, state
}

// initErr creates a provider for module and returns the Init error. Init must fail and
// leave the provider without an instance.
func initErr(t *testing.T, module []byte) error {
	t.Helper()

	ctx := context.Background()
	p, err := engine.New(ctx, module, engine.WithEngine(engine.EngineInterpreter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(ctx) })

	err = p.Init(ctx, wapc.NewModuleState("test", nil, nil))
	require.Error(t, err)

	assert.Nil(t, p.Imports())
	_, callErr := p.Call(ctx, 0, 0)
	require.ErrorIs(t, callErr, engine.ErrNotInitialized)

	return err
}

func TestProviderCallReturnsGuestResult(t *testing.T) {
	t.Parallel()

	p, state := newProvider(t, wasmtest.Const(42))

	result, err := p.Call(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(42), result)

	_, failed := state.GuestError()
	assert.False(t, failed)
}

func TestProviderInitFailures(t *testing.T) {
	t.Parallel()

	noEntry := wasmtest.New()
	noEntry.Export("other", noEntry.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	badEntry := wasmtest.New()
	badEntry.Export(wapc.GuestCall, badEntry.Func(nil, i32x1, wasmtest.I32Const(1)...))

	envImport := wasmtest.New()
	envImport.ImportFunc("env", "abort", nil, nil)
	envImport.Export(wapc.GuestCall, envImport.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	// _start would trap if any guest code ran before resolution failed.
	unknownHostFn := wasmtest.New()
	unknownHostFn.ImportFunc(wapc.HostNamespace, "totally_unknown_fn", nil, nil)
	unknownHostFn.Export(wapc.StartFn, unknownHostFn.Func(nil, nil, wasmtest.OpUnreachable))
	unknownHostFn.Export(wapc.GuestCall, unknownHostFn.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	badHostSig := wasmtest.New()
	badHostSig.ImportFunc(wapc.HostNamespace, wapc.HostConsoleLog, i32x1, nil)
	badHostSig.Export(wapc.GuestCall, badHostSig.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	unknownWASI := wasmtest.New()
	unknownWASI.ImportFunc("wasi_snapshot_preview1", "not_a_wasi_fn", nil, nil)
	unknownWASI.Export(wapc.GuestCall, unknownWASI.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	startTrap := wasmtest.New()
	startTrap.Export(wapc.WapcInitFn, startTrap.Func(nil, nil, wasmtest.OpUnreachable))
	startTrap.Export(wapc.GuestCall, startTrap.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	testCases := []struct {
		name     string
		module   []byte
		want     error
		contains string
	}{
		{name: "malformed bytes", module: []byte("not wasm"), want: engine.ErrCompile},
		{name: "missing entry export", module: noEntry.Bytes(), want: engine.ErrMissingEntryExport},
		{name: "wrong entry signature", module: badEntry.Bytes(), want: engine.ErrEntrySignature},
		{name: "unknown namespace", module: envImport.Bytes(), want: engine.ErrUnknownNamespace, contains: "env"},
		{
			name:     "unknown host function",
			module:   unknownHostFn.Bytes(),
			want:     engine.ErrUnknownHostFunction,
			contains: "totally_unknown_fn",
		},
		{name: "host signature mismatch", module: badHostSig.Bytes(), want: engine.ErrImportSignature},
		{name: "unknown WASI function", module: unknownWASI.Bytes(), want: engine.ErrUnresolvedImport},
		{name: "start export traps", module: startTrap.Bytes(), want: engine.ErrStartFailed, contains: wapc.WapcInitFn},
		{
			name:     "start export exits",
			module:   wasmtest.ExitingStart(42),
			want:     engine.ErrStartFailed,
			contains: wapc.StartFn,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := initErr(t, tc.module)
			require.ErrorIs(t, err, tc.want)
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
		})
	}
}

func TestProviderMissingEntryMessage(t *testing.T) {
	t.Parallel()

	m := wasmtest.New()
	m.Export("other", m.Func(nil, nil))

	err := initErr(t, m.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guest module did not export __guest_call function")
}

func TestProviderTrapSetsGuestError(t *testing.T) {
	t.Parallel()

	p, state := newProvider(t, wasmtest.Trap())

	result, err := p.Call(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result)

	msg, ok := state.GuestError()
	require.True(t, ok)
	assert.Contains(t, msg, "unreachable")

	// the instance stays usable after a trap.
	result, err = p.Call(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result)
}

func TestProviderStartOrder(t *testing.T) {
	t.Parallel()

	p, _ := newProvider(t, wasmtest.StartOrder())

	result, err := p.Call(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(123), result)

	// a replacement runs its own start exports against fresh state.
	require.NoError(t, p.Replace(context.Background(), wasmtest.StartOrder()))
	result, err = p.Call(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(123), result)
}

func TestProviderReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newProvider(t, wasmtest.Const(1))

	require.NoError(t, p.Replace(ctx, wasmtest.Const(2)))
	result, err := p.Call(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), result)
	assert.Equal(t, wasmtest.Const(2), p.Module())
}

func TestProviderReplaceFailureKeepsOldModule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newProvider(t, wasmtest.Const(7))

	envImport := wasmtest.New()
	envImport.ImportFunc("env", "abort", nil, nil)
	envImport.Export(wapc.GuestCall, envImport.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	modules := [][]byte{{0x00, 0x61}, envImport.Bytes(), wasmtest.Trap()[:12], wasmtest.ExitingStart(42)}
	for _, module := range modules {
		err := p.Replace(ctx, module)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hot swap failed")

		result, err := p.Call(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(7), result)
	}
	assert.Equal(t, wasmtest.Const(7), p.Module())
}

func TestProviderConcurrentCallsDuringReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newProvider(t, wasmtest.Const(1))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[int32]int{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				result, err := p.Call(ctx, 0, 0)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				results[result]++
				mu.Unlock()
			}
		}()
	}

	for i := range 5 {
		require.NoError(t, p.Replace(ctx, wasmtest.Const(int32(2+i%2))))
	}
	wg.Wait()

	for result := range results {
		assert.Contains(t, []int32{1, 2, 3}, result)
	}
}

func TestProviderLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := engine.New(ctx, wasmtest.Const(1))
	require.NoError(t, err)

	_, err = p.Call(ctx, 0, 0)
	require.ErrorIs(t, err, engine.ErrNotInitialized)
	require.ErrorIs(t, p.Replace(ctx, wasmtest.Const(2)), engine.ErrNotInitialized)

	state := wapc.NewModuleState("test", nil, nil)
	require.NoError(t, p.Init(ctx, state))
	require.ErrorIs(t, p.Init(ctx, state), engine.ErrAlreadyInitialized)

	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))

	_, err = p.Call(ctx, 0, 0)
	require.ErrorIs(t, err, engine.ErrClosed)
	require.ErrorIs(t, p.Replace(ctx, wasmtest.Const(2)), engine.ErrClosed)
	assert.Nil(t, p.Imports())
}

func TestProviderImportsKeepModuleOrder(t *testing.T) {
	t.Parallel()

	fdWrite := []byte{wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32}
	m := wasmtest.New()
	m.ImportFunc("wasi_snapshot_preview1", "fd_write", fdWrite, i32x1)
	m.ImportFunc(wapc.HostNamespace, wapc.GuestResponseFn, i32x2, nil)
	m.ImportFunc(engine.WASIUnstableNamespace, "fd_write", fdWrite, i32x1)
	m.ImportFunc(wapc.HostNamespace, wapc.HostConsoleLog, i32x2, nil)
	m.Memory()
	m.Export(wapc.GuestCall, m.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	p, _ := newProvider(t, m.Bytes())

	want := []engine.Import{
		{Namespace: "wasi_snapshot_preview1", Name: "fd_write", Resolution: engine.ResolutionWASI},
		{
			Namespace:  wapc.HostNamespace,
			Name:       wapc.GuestResponseFn,
			Resolution: engine.ResolutionHost,
			Host:       engine.GuestResponse,
		},
		{Namespace: engine.WASIUnstableNamespace, Name: "fd_write", Resolution: engine.ResolutionWASI},
		{
			Namespace:  wapc.HostNamespace,
			Name:       wapc.HostConsoleLog,
			Resolution: engine.ResolutionHost,
			Host:       engine.HostConsoleLog,
		},
	}
	assert.Equal(t, want, p.Imports())
}

func TestInspectKeepsNonFunctionImportsInPlace(t *testing.T) {
	t.Parallel()

	m := wasmtest.New()
	m.ImportMemory("env", "memory")
	m.ImportFunc(wapc.HostNamespace, wapc.HostConsoleLog, i32x2, nil)
	m.Export(wapc.GuestCall, m.Func(i32x2, i32x1, wasmtest.I32Const(1)...))

	report, err := engine.Inspect(context.Background(), m.Bytes())
	require.NoError(t, err)

	want := []engine.Import{
		{Namespace: "env", Name: "memory", Kind: engine.ImportMemory},
		{
			Namespace:  wapc.HostNamespace,
			Name:       wapc.HostConsoleLog,
			Kind:       engine.ImportFunc,
			Resolution: engine.ResolutionHost,
			Host:       engine.HostConsoleLog,
		},
	}
	assert.Equal(t, want, report.Imports)
	assert.Equal(t, "memory", report.Imports[0].Kind.String())
	assert.Equal(t, "none", report.Imports[0].Resolution.String())
}

func TestHostFunctionTable(t *testing.T) {
	t.Parallel()

	names := []string{
		wapc.HostConsoleLog, wapc.HostCallFn, wapc.GuestRequestFn,
		wapc.HostResponseFn, wapc.HostResponseLenFn, wapc.GuestResponseFn,
		wapc.GuestErrorFn, wapc.HostErrorFn, wapc.HostErrorLenFn,
	}
	for i, name := range names {
		fn, ok := engine.LookupHostFunction(name)
		require.True(t, ok, name)
		assert.Equal(t, engine.HostFunction(i+1), fn)
		assert.Equal(t, name, fn.String())
	}

	_, ok := engine.LookupHostFunction("__unknown")
	assert.False(t, ok)
	assert.Equal(t, "HostFunction(0)", engine.HostFunction(0).String())
}

func TestInspect(t *testing.T) {
	t.Parallel()

	report, err := engine.Inspect(context.Background(), wasmtest.StartOrder())
	require.NoError(t, err)
	assert.True(t, report.HasEntry)
	assert.Empty(t, report.Imports)
	assert.Equal(t, []string{wapc.StartFn, wapc.InitializeFn, wapc.WapcInitFn}, report.Starts)
	assert.Equal(t, []string{wapc.GuestCall, wapc.InitializeFn, wapc.StartFn, wapc.WapcInitFn}, report.Exports)

	report, err = engine.Inspect(context.Background(), wasmtest.Echo())
	require.NoError(t, err)
	assert.Len(t, report.Imports, 9)
	assert.Empty(t, report.Starts)

	_, err = engine.Inspect(context.Background(), []byte("junk"))
	require.ErrorIs(t, err, engine.ErrCompile)
}

func TestProviderWithCompilationCacheDir(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	for range 2 {
		p, err := engine.New(ctx, wasmtest.Const(5), engine.WithCompilationCacheDir(dir))
		require.NoError(t, err)
		require.NoError(t, p.Init(ctx, wapc.NewModuleState("cached", nil, nil)))

		result, err := p.Call(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(5), result)
		require.NoError(t, p.Close(ctx))
	}
}

func TestProviderUnknownEngine(t *testing.T) {
	t.Parallel()

	_, err := engine.New(context.Background(), wasmtest.Const(1), engine.WithEngine("jit"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, engine.ErrCompile))
}
