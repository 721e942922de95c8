package main

import (
	"context"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/adapters/promsink"
	"github.com/goliatone/go-dashboard-auth/adapters/zaplog"
	"github.com/goliatone/go-dashboard-auth/events/redisbus"
	"github.com/goliatone/go-dashboard-auth/middleware/csrf"
	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard console",
		Long: `Serves the sign in page and the role gated dashboard areas. The
session listener keeps the cached identity in step with the backend.
When HRM_REDIS_URL is set, session changes are shared with the other
processes using the same database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.HTTP.Addr = addr
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				return c.serve(cmd.Context(), a)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HRM_HTTP_ADDR)")
	return cmd
}

func (c *cli) serve(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *promsink.Sink
	sinks := []auth.ActivitySink{zaplog.ActivitySink(c.logger.Zap().Named("activity"))}
	if c.cfg.HTTP.Metrics {
		metrics = promsink.New()
		defer metrics.Observe(a.store)()
		sinks = append(sinks, metrics)
	}
	sink := auth.JoinActivitySinks(sinks...)
	a.service.WithActivitySink(sink)

	web := &console{
		service:  a.service,
		store:    a.store,
		metrics:  metrics,
		activity: sink,
		http:     c.cfg.HTTP,
		logger:   c.logger.Named("http"),
		csrfKey:  csrfKeyFrom(c.cfg.Auth.SigningKey),
	}

	if c.cfg.Redis.Enabled() {
		client, err := c.redisClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		web.csrfStorage = csrf.NewRedisStorage(client, "")
		defer c.startBus(ctx, client, a)()
	}

	listener := auth.NewSessionListener(a.service, a.provider).
		WithLogger(c.logger.Named("listener")).
		WithActivitySink(sink)
	if err := listener.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := listener.Close(); err != nil {
			c.logger.Warn("session listener close failed", "error", err)
		}
	}()

	app, err := web.routes()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("dashboard console listening", "addr", c.cfg.HTTP.Addr)
		errCh <- app.Listen(c.cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "console server failed").
				WithMetadata(map[string]any{"addr": c.cfg.HTTP.Addr})
		}
		return nil
	case <-ctx.Done():
	}

	c.logger.Info("shutting down dashboard console")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	return app.ShutdownWithContext(shutdownCtx)
}

func (c *cli) redisClient(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.cfg.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.CategoryOperation, "redis not reachable")
	}
	return client, nil
}

// startBus shares session events of this process with the others and
// replays theirs locally
func (c *cli) startBus(ctx context.Context, client *redis.Client, a *app) (stop func()) {
	bus := redisbus.New(client, redisbus.Config{Channel: c.cfg.Redis.Channel}).
		WithLogger(c.logger.Named("bus"))
	unsubscribe := bus.Forward(a.provider)

	runCtx, stopRun := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := bus.Run(runCtx, a.provider); err != nil {
			c.logger.Error("session event bus stopped", "error", err)
		}
	}()

	return func() {
		unsubscribe()
		stopRun()
		<-done
	}
}
