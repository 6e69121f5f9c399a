package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/resy-sniper/internal/auth"
	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/scheduler"
	"github.com/example/resy-sniper/internal/sniper"
	"github.com/example/resy-sniper/internal/web"
)

// shutdownGrace is how long in-flight snipes get to finish after a signal.
const shutdownGrace = 20 * time.Second

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the snipe scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.RequireSession(); err != nil {
				return err
			}

			sched := a.engine(ctx)
			srv := web.New(a.cfg.ListenAddr, web.Deps{
				Snipes:    a.service(sniper.WithScheduler(sched)),
				Limiter:   a.limiter,
				Auth:      auth.NewStore(a.cfg.CookieHashKey, a.cfg.CookieBlockKey, a.cfg.AdminUsername, a.cfg.AdminPasswordHash),
				Log:       a.log.With(logger.String("component", "http")),
				StartTime: time.Now(),
			})

			return supervise(ctx, a, sched, func(g *errgroup.Group, gctx context.Context) {
				g.Go(srv.Start)
				g.Go(func() error {
					<-gctx.Done()
					stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return srv.Stop(stopCtx)
				})
			})
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the snipe scheduler without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return supervise(ctx, a, a.engine(ctx), nil)
		},
	}
}

// supervise recovers pending snipes, keeps the scheduler in sync with the
// store until ctx is done and then shuts it down. extra adds more goroutines
// to the same group.
func supervise(ctx context.Context, a *app, sched *scheduler.Scheduler, extra func(g *errgroup.Group, gctx context.Context)) error {
	if err := sched.Startup(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx, a.cfg.SyncInterval); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if extra != nil {
		extra(g, gctx)
	}

	err := g.Wait()
	a.log.Info("shutting down", logger.Duration("grace", shutdownGrace))

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if serr := sched.Shutdown(sctx); serr != nil {
		a.log.Warn("in-flight snipes interrupted", logger.Error(serr))
	}
	return err
}
