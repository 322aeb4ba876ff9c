package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
)

// instance is one runnable guest together with the host module it is linked to.
type instance struct {
	name         string
	imports      []Import
	compiled     wazero.CompiledModule
	hostCompiled wazero.CompiledModule
	host         api.Module
	guest        api.Module
	guestCall    api.Function
}

// newInstance compiles module, resolves its imports, instantiates it, resolves the entry
// function and runs the start exports. Nothing is returned unless every step succeeded.
func (p *Provider) newInstance(
	ctx context.Context,
	module []byte,
	host wapc.HostBinding,
) (_ *instance, err error) {
	inst := &instance{name: "guest-" + uuid.NewString()}
	defer func() {
		if err != nil {
			inst.close(ctx)
		}
	}()

	inst.compiled, err = p.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	inst.imports, err = resolveImports(inst.compiled, module, p.wasi)
	if err != nil {
		return nil, err
	}

	inst.hostCompiled, inst.host, err = instantiateHostModule(ctx, p.runtime, inst.imports, host)
	if err != nil {
		return nil, err
	}

	linkCtx := experimental.WithImportResolver(ctx, func(name string) api.Module {
		if name == wapc.HostNamespace && inst.host != nil {
			return inst.host
		}

		return p.wasi[name]
	})

	inst.guest, err = p.runtime.InstantiateModule(linkCtx, inst.compiled, p.moduleConfig.WithName(inst.name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstantiate, err)
	}

	inst.guestCall, err = guestCallFn(inst.guest)
	if err != nil {
		return nil, err
	}

	if err := inst.initialize(ctx); err != nil {
		return nil, err
	}

	return inst, nil
}

// initialize runs every declared start export once, in order.
func (inst *instance) initialize(ctx context.Context) error {
	for _, name := range wapc.RequiredStarts {
		fn := inst.guest.ExportedFunction(name)
		if fn == nil {
			continue
		}

		log.Debug().
			Str("event", "start_export").
			Str("instance", inst.name).
			Str("export", name).
			Msg("running start export")

		if _, err := fn.Call(ctx); err != nil {
			var exitErr *sys.ExitError
			if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
				return fmt.Errorf("%w: %s: %w", ErrStartFailed, name, err)
			}
		}

		// proc_exit closes the module even when the exit code is 0.
		if inst.guest.IsClosed() {
			return fmt.Errorf("%w: %s: module exited", ErrStartFailed, name)
		}
	}

	return nil
}

// close releases the guest, its host module and their compiled forms.
func (inst *instance) close(ctx context.Context) {
	if inst.guest != nil {
		inst.logCloseErr(inst.guest.Close(ctx))
	}
	if inst.host != nil {
		inst.logCloseErr(inst.host.Close(ctx))
	}
	if inst.compiled != nil {
		inst.logCloseErr(inst.compiled.Close(ctx))
	}
	if inst.hostCompiled != nil {
		inst.logCloseErr(inst.hostCompiled.Close(ctx))
	}
}

func (inst *instance) logCloseErr(err error) {
	if err == nil {
		return
	}

	log.Warn().
		Str("event", "instance_close_failed").
		Str("instance", inst.name).
		Err(err).
		Msg("failed to release instance resource")
}
