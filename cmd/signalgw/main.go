// Command signalgw streams published trading signals to WebSocket clients.
// It pattern-subscribes to the Redis signal channels written by
// "backtest monitor" and serves:
//
//	/ws                    live signals; ?symbols=A,B&last_ts=RFC3339
//	/api/signals/latest    newest signal per symbol
//	/api/signals/missed    replay by per-symbol sequence
//	/api/signals/history   stored history from Redis
//	/healthz, /metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/gateway"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/metrics"
	redisstore "trading-backtestv1/internal/store/redis"
)

func main() {
	app := &cli.App{
		Name:  "signalgw",
		Usage: "fan out published signals to WebSocket clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"BACKTEST_CONFIG"},
			},
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides gateway_addr)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: serve,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Printf("[signalgw] %v", err)
		stop()
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if addr := c.String("addr"); addr != "" {
		cfg.GatewayAddr = addr
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.Init(logger.Options{Service: "signalgw", Level: level, Format: cfg.Log.Format})
	ctx := c.Context

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(false)
	health.CheckRedis(ctx, reader.Client())
	health.StartLivenessChecker(ctx, reader.Client(), nil, 10*time.Second)

	hub := gateway.NewHub(gateway.Options{})
	hub.Metrics = m
	hub.Health = health
	prime(ctx, hub, reader, cfg.Watchlist)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, reader)
	mux.Handle("/healthz", health)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- hub.Run(ctx, reader)
	}()
	go func() {
		log.Printf("[signalgw] listening on %s", cfg.GatewayAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	log.Println("[signalgw] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[signalgw] shutdown: %v", err)
	}
	return runErr
}

// prime loads the stored latest signal of each watchlist symbol so clients
// connecting before the next publish still get a snapshot.
func prime(ctx context.Context, hub *gateway.Hub, reader *redisstore.Reader, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	sigs, err := reader.LatestAll(ctx, symbols)
	if err != nil {
		log.Printf("[signalgw] snapshot load failed: %v", err)
		return
	}
	for _, s := range sigs {
		data, err := json.Marshal(s)
		if err != nil {
			continue
		}
		hub.Broadcast(s.Symbol, data)
	}
	log.Printf("[signalgw] primed %d of %d symbols from redis", len(sigs), len(symbols))
}
