package engine

import (
	"context"
	"fmt"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// readMemory reads size bytes at ptr from the calling guest. Out-of-bounds access traps
// the guest call.
func readMemory(mod api.Module, ptr, size uint32) []byte {
	memory := mod.Memory()
	if memory == nil {
		panic(fmt.Errorf("no memory exported"))
	}

	data, ok := memory.Read(ptr, size)
	if !ok {
		panic(fmt.Errorf("failed to read memory at %d[%d]", ptr, size))
	}

	return data
}

// writeMemory writes data at ptr into the calling guest.
func writeMemory(mod api.Module, ptr uint32, data []byte) {
	memory := mod.Memory()
	if memory == nil {
		panic(fmt.Errorf("no memory exported"))
	}

	if !memory.Write(ptr, data) {
		panic(fmt.Errorf("failed to write memory at %d[%d]", ptr, len(data)))
	}
}

func readString(mod api.Module, ptr, size uint32) string {
	return string(readMemory(mod, ptr, size))
}

// hostFunctionImpl returns the implementation of fn bound to host.
func hostFunctionImpl(fn HostFunction, host wapc.HostBinding) api.GoModuleFunc {
	switch fn {
	case HostConsoleLog:
		return func(_ context.Context, mod api.Module, stack []uint64) {
			host.ConsoleLog(readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1])))
		}
	case HostCall:
		return func(ctx context.Context, mod api.Module, stack []uint64) {
			binding := readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
			namespace := readString(mod, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
			operation := readString(mod, api.DecodeU32(stack[4]), api.DecodeU32(stack[5]))
			payload := append([]byte(nil), readMemory(mod, api.DecodeU32(stack[6]), api.DecodeU32(stack[7]))...)

			stack[0] = api.EncodeI32(host.DoHostCall(ctx, binding, namespace, operation, payload))
		}
	case GuestRequest:
		return func(_ context.Context, mod api.Module, stack []uint64) {
			inv, ok := host.GuestRequest()
			if !ok {
				return
			}
			writeMemory(mod, api.DecodeU32(stack[1]), inv.Payload)
			writeMemory(mod, api.DecodeU32(stack[0]), []byte(inv.Operation))
		}
	case HostResponse:
		return func(_ context.Context, mod api.Module, stack []uint64) {
			if resp, ok := host.HostResponse(); ok {
				writeMemory(mod, api.DecodeU32(stack[0]), resp)
			}
		}
	case HostResponseLen:
		return func(_ context.Context, _ api.Module, stack []uint64) {
			resp, _ := host.HostResponse()
			stack[0] = api.EncodeI32(int32(len(resp)))
		}
	case GuestResponse:
		return func(_ context.Context, mod api.Module, stack []uint64) {
			data := readMemory(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
			host.SetGuestResponse(append([]byte{}, data...))
		}
	case GuestError:
		return func(_ context.Context, mod api.Module, stack []uint64) {
			host.SetGuestError(readString(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1])))
		}
	case HostError:
		return func(_ context.Context, mod api.Module, stack []uint64) {
			if msg, ok := host.HostError(); ok {
				writeMemory(mod, api.DecodeU32(stack[0]), []byte(msg))
			}
		}
	case HostErrorLen:
		return func(_ context.Context, _ api.Module, stack []uint64) {
			msg, _ := host.HostError()
			stack[0] = api.EncodeI32(int32(len(msg)))
		}
	}

	panic(fmt.Sprintf("engine: no implementation for %v", fn))
}

// instantiateHostModule builds the waPC host module for one instance, exporting exactly
// the host functions its imports resolved to. It returns nil when none are needed.
func instantiateHostModule(
	ctx context.Context,
	r wazero.Runtime,
	imports []Import,
	host wapc.HostBinding,
) (wazero.CompiledModule, api.Module, error) {
	builder := r.NewHostModuleBuilder(wapc.HostNamespace)
	exported := make(map[HostFunction]bool)
	for _, imp := range imports {
		if imp.Resolution != ResolutionHost || exported[imp.Host] {
			continue
		}
		sig := hostFunctions[imp.Host]
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostFunctionImpl(imp.Host, host), sig.params, sig.results).
			Export(sig.name)
		exported[imp.Host] = true
	}
	if len(exported) == 0 {
		return nil, nil, nil
	}

	compiled, err := builder.Compile(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile host module: %w", err)
	}

	// Anonymous, so several instances can coexist during a swap.
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	return compiled, mod, nil
}
