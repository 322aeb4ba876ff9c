package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrei-cloud/go_wapc/internal/commands/cli"
	"github.com/rs/zerolog/log"
)

func main() {
	rootCmd, err := cli.NewRootCommand()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create root command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
