// Package module provides commands that run or describe individual guest modules.
package module

import (
	"context"
	"fmt"
	"os"

	"github.com/andrei-cloud/go_wapc/internal/config"
	"github.com/andrei-cloud/go_wapc/internal/modules"
	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/andrei-cloud/go_wapc/pkg/wapc"
)

// OpenHost loads the module at path into a host configured from the current config,
// followed by opts. Host calls are served by the default router.
func OpenHost(ctx context.Context, path string, opts ...engine.Option) (*wapc.Host, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}

	engineOpts := append(config.Get().EngineOptions(), opts...)
	p, err := engine.New(ctx, code, engineOpts...)
	if err != nil {
		return nil, err
	}

	h, err := wapc.NewHost(ctx, p, modules.NewRouter().HostCall)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}

	return h, nil
}
