// Package server provides server-related CLI commands.
package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrei-cloud/go_wapc/internal/config"
	"github.com/andrei-cloud/go_wapc/internal/modules"
	"github.com/andrei-cloud/go_wapc/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the waPC module server",
		Long: `Load every guest module in the module directory and serve invocations over TCP.
Send SIGHUP to hot-swap modules that changed on disk.`,
		RunE: runServe,
	}

	// Serve command specific flags that can override config.
	cmd.Flags().String("server-host", "localhost", "Server host")
	cmd.Flags().Int("server-port", 1500, "Server port")
	cmd.Flags().Int("modules-pool-size", 4, "Hosts per module")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Get()
	ctx := cmd.Context()

	// Make sure module directory exists.
	if err := os.MkdirAll(cfg.Modules.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create module directory: %w", err)
	}

	manager, err := modules.NewManager(
		cfg.Modules.Path,
		cfg.Modules.PoolSize,
		modules.WithEngineOptions(cfg.EngineOptions()...),
		modules.WithCacheDir(cfg.Engine.CacheDir),
	)
	if err != nil {
		return fmt.Errorf("failed to create module manager: %w", err)
	}
	defer func() {
		if err := manager.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close module manager")
		}
	}()

	if err := manager.LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load modules: %w", err)
	}

	for _, info := range manager.Registry().List() {
		log.Debug().
			Str("module", info.Name).
			Str("digest", info.Digest).
			Int64("size", info.Size).
			Msg("module details")
	}

	srv, err := server.NewServer(cfg.Addr(), manager)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	// Reload modules on SIGHUP.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	defer signal.Stop(reloadChan)
	go func() {
		for range reloadChan {
			log.Info().Str("event", "reload").Msg("reloading modules...")

			report, err := manager.Reload(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to reload modules")
				continue
			}
			log.Info().
				Str("event", "reload_done").
				Strs("added", report.Added).
				Strs("swapped", report.Swapped).
				Strs("removed", report.Removed).
				Strs("failed", report.Failed).
				Msg("modules reloaded")
		}
	}()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server...")

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	return nil
}
