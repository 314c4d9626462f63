// Command scheduler runs the cron-driven synthetic event producer: it fans
// DefaultJobs out per tenant and warehouse on a UTC cron schedule and
// enqueues the resulting envelopes through the outbox.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lucerna-wms/reactor/common/config"
	"github.com/lucerna-wms/reactor/common/logger"
	"github.com/lucerna-wms/reactor/common/tracing"
	"github.com/lucerna-wms/reactor/discovery"
	"github.com/lucerna-wms/reactor/discovery/consul"
	"github.com/lucerna-wms/reactor/internal/outbox"
	"github.com/lucerna-wms/reactor/internal/scheduler"
	"github.com/lucerna-wms/reactor/internal/store"
)

var (
	serviceName = "scheduler"
	healthAddr  = config.GetEnv("HEALTH_ADDR", "localhost:9104")
	consulAddr  = config.GetEnv("CONSUL_ADDR", "localhost:8500")

	postgresHost = config.GetEnv("POSTGRES_HOST", "localhost")
	postgresPort = config.GetEnv("POSTGRES_PORT", "5432")
	postgresUser = config.GetEnv("POSTGRES_USER", "reactor")
	postgresPass = config.GetEnv("POSTGRES_PASSWORD", "reactor")
	postgresDB   = config.GetEnv("POSTGRES_DB", "reactor")
	metricsAddr  = config.GetEnv("METRICS_ADDR", ":9104")
)

func main() {
	zapLogger, _ := zap.NewProduction()
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	slogLogger := logger.NewLogger(serviceName)

	shutdownTracer, err := tracing.InitTracer(serviceName)
	if err != nil {
		zapLogger.Fatal("init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	reg, err := consul.NewRegistry(consulAddr)
	if err != nil {
		zapLogger.Fatal("connect to consul", zap.Error(err))
	}
	ctx := context.Background()
	instanceID := discovery.GenerateInstanceID(serviceName)
	if err := reg.Register(ctx, instanceID, serviceName, healthAddr); err != nil {
		zapLogger.Fatal("register with consul", zap.Error(err))
	}
	defer reg.Deregister(ctx, instanceID, serviceName)

	healthStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-healthStop:
				return
			case <-ticker.C:
				if err := reg.HealthCheck(instanceID, serviceName); err != nil {
					zapLogger.Error("health check", zap.Error(err))
				}
			}
		}
	}()
	defer close(healthStop)

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPass, postgresHost, postgresPort, postgresDB)
	db, err := store.Open(connStr)
	if err != nil {
		zapLogger.Fatal("connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("apply schema", zap.Error(err))
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			slogLogger.Error("metrics server stopped", "error", err)
		}
	}()

	ob := outbox.New(db.DB())
	s := scheduler.New(scheduler.DefaultJobs(), db, db, ob, ob, slogLogger)

	if err := s.Start(); err != nil {
		zapLogger.Fatal("start scheduler", zap.Error(err))
	}
	defer s.Stop()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slogLogger.Info("scheduler starting", "jobs", len(scheduler.DefaultJobs()))
	<-sigCtx.Done()
	slogLogger.Info("scheduler shutting down")
}
