package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"threatreg/internal/config"
	"threatreg/internal/database"
	"threatreg/internal/destination"
	"threatreg/internal/dispatch"
	"threatreg/internal/support"
)

// Runtime holds the long-lived services started by Setup.
type Runtime struct {
	Dispatcher *dispatch.Coordinator
}

func Setup(ctx context.Context) (*Runtime, error) {
	config.ReadSettings()

	if _, err := database.SetupDB(); err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	opts := dispatchOptions(config.GetConfig())

	redisClient, err := support.GetRedisClient()
	switch {
	case errors.Is(err, support.ErrRedisDisabled):
		log.Debug("Redis not configured, running as a single instance")
	case err != nil:
		log.Warn("Redis unavailable, running as a single instance", "error", err)
	default:
		config.EnableRedisSynchronization(ctx, redisClient)
		opts = append(opts, dispatch.WithNotifier(dispatch.NewRedisNotifier(redisClient)))
	}

	destinations := destination.BuildAll(config.GetConfig().Destinations)
	coordinator := dispatch.New(destinations, database.Outcomes{}, opts...)
	log.Info("Dispatch ready", "destinations", len(destinations))

	go watchDestinations(ctx, coordinator)

	return &Runtime{Dispatcher: coordinator}, nil
}

func dispatchOptions(cfg config.Config) []dispatch.Option {
	return []dispatch.Option{
		dispatch.WithAttemptTimeoutSource(config.GetAttemptTimeout),
		dispatch.WithMaxConcurrent(cfg.Dispatch.MaxConcurrent),
		dispatch.WithPerDispatchLimit(cfg.Dispatch.PerDispatchLimit),
	}
}

// watchDestinations rebuilds the destination set and applies the dispatch
// limits whenever settings change.
func watchDestinations(ctx context.Context, coordinator *dispatch.Coordinator) {
	updates := config.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			destinations := destination.BuildAll(cfg.Destinations)
			coordinator.SetDestinations(destinations)
			coordinator.SetLimits(cfg.Dispatch.MaxConcurrent, cfg.Dispatch.PerDispatchLimit)
			log.Debug("Destinations reloaded", "destinations", len(destinations), "max_concurrent", cfg.Dispatch.MaxConcurrent, "per_dispatch_limit", cfg.Dispatch.PerDispatchLimit)
		}
	}
}

// Shutdown waits for in-flight deliveries and releases connections.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if rt.Dispatcher != nil {
		if err := rt.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatch: %w", err))
		}
	}

	config.DisableRedisSynchronization()
	if err := support.CloseRedisClient(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if err := database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	return errors.Join(errs...)
}
