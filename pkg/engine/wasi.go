package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASIUnstableNamespace is the legacy WASI module name some toolchains still emit.
const WASIUnstableNamespace = "wasi_unstable"

// WASI namespaces resolved against the WASI host modules.
var wasiNamespaces = []string{wasi_snapshot_preview1.ModuleName, WASIUnstableNamespace}

// instantiateWASI instantiates one anonymous WASI host module per namespace. Guests are
// linked to them through the import resolver only.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (map[string]api.Module, error) {
	mods := make(map[string]api.Module, len(wasiNamespaces))
	for _, namespace := range wasiNamespaces {
		builder := r.NewHostModuleBuilder(namespace)
		wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

		compiled, err := builder.Compile(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", namespace, err)
		}

		mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
		if err != nil {
			return nil, fmt.Errorf("failed to instantiate %s: %w", namespace, err)
		}
		mods[namespace] = mod
	}

	return mods, nil
}
