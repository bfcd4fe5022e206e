package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/tenant"
)

// Run is the entrypoint of cmd/sessiond. With no arguments (or "serve") it
// runs until SIGINT or SIGTERM; "purge" runs one retention pass and exits.
func Run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "serve" && command != "purge" {
		return errors.Join(ErrUnknownCommand, errors.New(command))
	}

	settings, err := LoadSettings()
	if err != nil {
		return err
	}
	log, err := logger.NewFromConfig(settings.Logger, logger.WithContextExtractors(tenant.LogExtractor()))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, settings, log)
	if err != nil {
		log.ErrorContext(ctx, "failed to start sessiond", logger.Error(err))
		return err
	}

	if command == "purge" {
		return errors.Join(a.scheduler.RunNow(ctx, purgeTaskName), a.Close(context.WithoutCancel(ctx)))
	}
	return a.Run(ctx)
}
