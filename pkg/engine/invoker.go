package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/tetratelabs/wazero/api"
)

var (
	entryParams  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	entryResults = []api.ValueType{api.ValueTypeI32}
)

// guestCallFn resolves the entry export of mod. Called once per instance.
func guestCallFn(mod api.Module) (api.Function, error) {
	fn := mod.ExportedFunction(wapc.GuestCall)
	if fn == nil {
		return nil, ErrMissingEntryExport
	}

	def := fn.Definition()
	if !slices.Equal(def.ParamTypes(), entryParams) || !slices.Equal(def.ResultTypes(), entryResults) {
		return nil, fmt.Errorf("%w: %v -> %v", ErrEntrySignature, def.ParamTypes(), def.ResultTypes())
	}

	return fn, nil
}

// invoke calls the entry function with the operation and payload lengths.
func (inst *instance) invoke(ctx context.Context, operationLen, payloadLen int32) (int32, error) {
	results, err := inst.guestCall.Call(ctx, api.EncodeI32(operationLen), api.EncodeI32(payloadLen))
	if err != nil {
		return 0, err
	}

	return api.DecodeI32(results[0]), nil
}
