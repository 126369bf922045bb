package di

import (
	"time"

	"github.com/ellis-vester/backloggd-discord/internal/modules/feed/dedup"
	"github.com/ellis-vester/backloggd-discord/internal/modules/feed/fetcher"
	"github.com/ellis-vester/backloggd-discord/internal/modules/notify"
	"github.com/ellis-vester/backloggd-discord/internal/modules/poller"
	subRepo "github.com/ellis-vester/backloggd-discord/internal/modules/subscription/repository"
	subService "github.com/ellis-vester/backloggd-discord/internal/modules/subscription/service"
	"github.com/ellis-vester/backloggd-discord/internal/shared/config"
	discordTransport "github.com/ellis-vester/backloggd-discord/internal/transport/discord"
	httpServer "github.com/ellis-vester/backloggd-discord/internal/transport/http"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

// Setup initializes the dependency injection container
func Setup() (do.Injector, error) {
	injector := do.New()

	// Register Config
	do.Provide(injector, func(i do.Injector) (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, oops.With("context", "failed to load config").Wrap(err)
		}
		return cfg, nil
	})

	// Register Feed Store
	do.Provide(injector, func(i do.Injector) (subRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := subRepo.NewFileStorage(cfg.StoragePath)
		if err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to initialize feed store").Wrap(err)
		}
		return repo, nil
	})

	// Register Feed Fetcher
	do.Provide(injector, func(i do.Injector) (*fetcher.Fetcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return fetcher.New(cfg.FetchTimeoutDuration()), nil
	})

	// Register Dedup Engine
	do.Provide(injector, func(i do.Injector) (*dedup.Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return dedup.New(cfg.RetentionCap), nil
	})

	// Register Subscription Service
	do.Provide(injector, func(i do.Injector) (*subService.Service, error) {
		repo := do.MustInvoke[subRepo.Repository](i)
		f := do.MustInvoke[*fetcher.Fetcher](i)
		return subService.New(repo, f), nil
	})

	// Register Discord Handler
	do.Provide(injector, func(i do.Injector) (*discordTransport.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		subscriptions := do.MustInvoke[*subService.Service](i)
		handler, err := discordTransport.New(cfg, subscriptions)
		if err != nil {
			return nil, oops.With("context", "failed to create discord handler").Wrap(err)
		}
		return handler, nil
	})

	// Register Notification Dispatcher
	do.Provide(injector, func(i do.Injector) (*notify.Dispatcher, error) {
		handler := do.MustInvoke[*discordTransport.Handler](i)
		subscriptions := do.MustInvoke[*subService.Service](i)

		dispatcher := notify.NewDispatcher(handler)
		dispatcher.SetChannelGoneHandler(subscriptions.DropChannel)
		return dispatcher, nil
	})

	// Register Poll Scheduler (needs to be wired back into the
	// subscription service after construction)
	do.Provide(injector, func(i do.Injector) (*poller.Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[subRepo.Repository](i)
		f := do.MustInvoke[*fetcher.Fetcher](i)
		engine := do.MustInvoke[*dedup.Engine](i)
		dispatcher := do.MustInvoke[*notify.Dispatcher](i)

		scheduler := poller.New(poller.Options{
			PollInterval:     cfg.PollIntervalDuration(),
			BackoffCap:       cfg.BackoffCapDuration(),
			FailureThreshold: cfg.FailureNoticeThreshold,
			RetireGrace:      cfg.RetireGraceDuration(),
			ShutdownTimeout:  cfg.FetchTimeoutDuration() + 5*time.Second,
		}, repo, f, engine, dispatcher)

		subscriptions := do.MustInvoke[*subService.Service](i)
		subscriptions.SetScheduler(scheduler)

		return scheduler, nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		scheduler := do.MustInvoke[*poller.Scheduler](i)
		server := httpServer.New(cfg, scheduler)
		return server, nil
	})

	return injector, nil
}

// Shutdown gracefully shuts down all services
func Shutdown(injector do.Injector) error {
	// Stop polling before dropping the Discord session so in-flight
	// dispatches can still deliver.
	if scheduler, err := do.Invoke[*poller.Scheduler](injector); err == nil && scheduler != nil {
		scheduler.Stop()
	}

	if handler, err := do.Invoke[*discordTransport.Handler](injector); err == nil && handler != nil {
		if err := handler.Close(); err != nil {
			return oops.With("context", "failed to close discord session").Wrap(err)
		}
	}

	return nil
}
