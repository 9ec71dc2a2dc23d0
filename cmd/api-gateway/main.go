package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/gateway"
	"github.com/radieske/caro-bet-platform/internal/shared/config"
	"github.com/radieske/caro-bet-platform/internal/shared/logger"
	"github.com/radieske/caro-bet-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.JWTSecret == "" {
		if cfg.Env != "local" {
			log.Fatal("JWT_SECRET is required outside local env")
		}
		log.Warn("JWT_SECRET empty: bearer token is taken as the user id")
	}

	gw, err := gateway.New(log, prometheus.DefaultRegisterer, cfg.CaroURL, cfg.JWTSecret, cfg.AllowedOrigins)
	if err != nil {
		log.Fatal("gateway init", zap.Error(err))
	}

	// healthz do gateway reflete o caro-service
	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, prometheus.DefaultGatherer, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.CaroURL+"/v1/caro/rooms", nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-User-ID", "healthcheck")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errors.New("caro-service status " + resp.Status)
		}
		return nil
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("api-gateway listening", zap.String("addr", srv.Addr), zap.String("upstream", cfg.CaroURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("api-gateway stopped")
}
