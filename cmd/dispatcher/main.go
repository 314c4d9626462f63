// Command dispatcher runs the outbox dispatcher: it polls the outbox table
// and publishes due rows to RabbitMQ, confirming each publish before
// marking the row as published.
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
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lucerna-wms/reactor/common/config"
	"github.com/lucerna-wms/reactor/common/logger"
	"github.com/lucerna-wms/reactor/common/metrics"
	"github.com/lucerna-wms/reactor/common/tracing"
	"github.com/lucerna-wms/reactor/discovery"
	"github.com/lucerna-wms/reactor/discovery/consul"
	"github.com/lucerna-wms/reactor/internal/broker"
	"github.com/lucerna-wms/reactor/internal/dispatcher"
	"github.com/lucerna-wms/reactor/internal/outbox"
	"github.com/lucerna-wms/reactor/internal/store"
)

var (
	serviceName = "dispatcher"
	healthAddr  = config.GetEnv("HEALTH_ADDR", "localhost:9102")
	consulAddr  = config.GetEnv("CONSUL_ADDR", "localhost:8500")
	amqpUser    = config.GetEnv("RABBITMQ_USER", "guest")
	amqpPass    = config.GetEnv("RABBITMQ_PASS", "guest")
	amqpHost    = config.GetEnv("RABBITMQ_HOST", "localhost")
	amqpPort    = config.GetEnv("RABBITMQ_PORT", "5672")

	postgresHost = config.GetEnv("POSTGRES_HOST", "localhost")
	postgresPort = config.GetEnv("POSTGRES_PORT", "5432")
	postgresUser = config.GetEnv("POSTGRES_USER", "reactor")
	postgresPass = config.GetEnv("POSTGRES_PASSWORD", "reactor")
	postgresDB   = config.GetEnv("POSTGRES_DB", "reactor")
	metricsAddr  = config.GetEnv("METRICS_ADDR", ":9102")
)

// instrumentedPublisher wraps a dispatcher.Publisher to count publishes by
// outcome on the outbox_publish_total series.
type instrumentedPublisher struct {
	inner dispatcher.Publisher
	m     *metrics.WarehouseMetrics
}

func (p *instrumentedPublisher) PublishAndConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing, timeout time.Duration) error {
	err := p.inner.PublishAndConfirm(ctx, exchange, routingKey, msg, timeout)
	if err != nil {
		p.m.OutboxPublishTotal.WithLabelValues("failed").Inc()
		return err
	}
	p.m.OutboxPublishTotal.WithLabelValues("published").Inc()
	return nil
}

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

	ch, closeBroker, err := broker.Connect(amqpUser, amqpPass, amqpHost, amqpPort)
	if err != nil {
		zapLogger.Fatal("connect to broker", zap.Error(err))
	}
	defer closeBroker()

	warehouseMetrics := metrics.NewWarehouseMetrics()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			slogLogger.Error("metrics server stopped", "error", err)
		}
	}()

	ob := outbox.New(db.DB())
	confirmCh := broker.NewConfirmingChannel(ch)
	publisher := &instrumentedPublisher{inner: confirmCh, m: warehouseMetrics}
	d := dispatcher.New(ob, publisher, dispatcher.DefaultConfig(), slogLogger)

	runCtx, cancel := context.WithCancel(ctx)
	go pollQueueSize(runCtx, ob, warehouseMetrics)

	sigCtx, stop := signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slogLogger.Info("dispatcher starting")
	if err := d.Run(sigCtx); err != nil {
		slogLogger.Error("dispatcher stopped with error", "error", err)
	}
	cancel()
}

// pollQueueSize keeps the outbox_queue_size gauge fresh for operators
// without coupling the dispatcher's hot publish loop to a metrics query.
func pollQueueSize(ctx context.Context, ob *outbox.Store, m *metrics.WarehouseMetrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ob.QueueSize(ctx)
			if err != nil {
				continue
			}
			m.OutboxQueueSize.Set(float64(n))
		}
	}
}
