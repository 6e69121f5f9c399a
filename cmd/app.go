package cmd

import (
	"context"
	"errors"

	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/executor"
	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/notify"
	"github.com/example/resy-sniper/internal/platform"
	"github.com/example/resy-sniper/internal/platform/opentable"
	"github.com/example/resy-sniper/internal/platform/resy"
	"github.com/example/resy-sniper/internal/ratelimit"
	"github.com/example/resy-sniper/internal/scheduler"
	"github.com/example/resy-sniper/internal/snipe"
	"github.com/example/resy-sniper/internal/sniper"
	"github.com/example/resy-sniper/internal/store/memory"
	"github.com/example/resy-sniper/internal/store/postgres"
	"github.com/example/resy-sniper/internal/store/sqlite"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg     config.Config
	log     logger.Logger
	store   snipe.Store
	limiter *ratelimit.Limiter
	closers []func() error
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, File: cfg.LogFile})
	a := &app{
		cfg:     cfg,
		log:     log,
		limiter: ratelimit.New(cfg.RateLimits, ratelimit.WithFallback(cfg.RateFallback)),
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, log logger.Logger) (snipe.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, log.With(logger.String("component", "postgres")))
	case config.StoreMemory:
		return memory.NewStore(), nil
	default:
		return sqlite.NewStore(cfg.DBPath), nil
	}
}

func (a *app) registry() *platform.Registry {
	return platform.NewRegistry(
		resy.New(resy.Credentials{APIKey: a.cfg.ResyAPIKey, AuthToken: a.cfg.ResyAuthToken}),
		opentable.New(opentable.Config{Token: a.cfg.OpenTableToken, QueryHash: a.cfg.OpenTableQueryHash}),
	)
}

// notifier always logs outcomes and adds Redis and Kafka when configured. A
// Redis that cannot be reached is logged and skipped.
func (a *app) notifier(ctx context.Context) notify.Notifier {
	n := notify.Multi{notify.Log{Logger: a.log}}

	if a.cfg.RedisAddr != "" {
		client, err := notify.DialRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.log)
		if err != nil {
			a.log.Warn("redis notifications disabled", logger.Error(err))
		} else {
			n = append(n, notify.Redis{Client: client, Channel: a.cfg.RedisChannel})
			a.closers = append(a.closers, client.Close)
		}
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		k := notify.Kafka{Writer: notify.NewKafkaWriter(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)}
		n = append(n, k)
		a.closers = append(a.closers, k.Close)
		a.log.Info("kafka notifications enabled", logger.String("topic", a.cfg.KafkaTopic))
	}
	return n
}

// engine wires the executor and scheduler on top of the store.
func (a *app) engine(ctx context.Context) *scheduler.Scheduler {
	exec := executor.New(a.store, a.registry(), a.limiter, a.cfg.ExecutorConfig(),
		executor.WithNotifier(a.notifier(ctx)),
		executor.WithLogger(a.log.With(logger.String("component", "executor"))),
	)
	return scheduler.New(a.store, exec,
		scheduler.WithLeadTime(a.cfg.LeadTime),
		scheduler.WithLogger(a.log.With(logger.String("component", "scheduler"))),
	)
}

func (a *app) service(opts ...sniper.Option) *sniper.Service {
	opts = append([]sniper.Option{sniper.WithLogger(a.log)}, opts...)
	return sniper.New(a.store, opts...)
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}
