// Command consumer runs the event consumer: it drains the fan-in queue,
// dispatches each envelope through the agent runtime, and durably enqueues
// any derived envelopes for the dispatcher. Registers every agent in
// internal/agents against a shared *store.Store plus the Redis idempotency
// cache and Mongo audit log.
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
	"github.com/lucerna-wms/reactor/common/metrics"
	"github.com/lucerna-wms/reactor/common/tracing"
	"github.com/lucerna-wms/reactor/discovery"
	"github.com/lucerna-wms/reactor/discovery/consul"
	"github.com/lucerna-wms/reactor/internal/agents"
	"github.com/lucerna-wms/reactor/internal/audit"
	"github.com/lucerna-wms/reactor/internal/broker"
	"github.com/lucerna-wms/reactor/internal/consumer"
	"github.com/lucerna-wms/reactor/internal/idempotency"
	"github.com/lucerna-wms/reactor/internal/outbox"
	"github.com/lucerna-wms/reactor/internal/registry"
	"github.com/lucerna-wms/reactor/internal/runtime"
	"github.com/lucerna-wms/reactor/internal/store"
)

// instrumentedAuditLog records each Dispatch summary to the audit log and
// updates the agent_invocations_total / agent_duration_seconds series from
// the same data, so the two never disagree about what ran.
type instrumentedAuditLog struct {
	log *audit.Log
	m   *metrics.WarehouseMetrics
}

func (r *instrumentedAuditLog) RecordSummary(ctx context.Context, eventID, tenantID string, startedAt time.Time, summary runtime.Summary) error {
	for _, inv := range summary.Invocations {
		result := "success"
		if inv.Err != nil || !inv.Result.Success {
			result = "failure"
		}
		r.m.AgentInvocations.WithLabelValues(inv.AgentName, result).Inc()
		r.m.AgentDuration.WithLabelValues(inv.AgentName).Observe(inv.Duration.Seconds())
	}
	return r.log.RecordSummary(ctx, eventID, tenantID, startedAt, summary)
}

// retryCounter adapts metrics.WarehouseMetrics to consumer.RetryCounter.
type retryCounter struct {
	m *metrics.WarehouseMetrics
}

func (r *retryCounter) IncRetry() {
	r.m.ConsumerRetries.Inc()
}

var (
	serviceName = "consumer"
	healthAddr  = config.GetEnv("HEALTH_ADDR", "localhost:9103")
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

	redisAddr = config.GetEnv("REDIS_ADDR", "localhost:6379")
	mongoURI  = config.GetEnv("MONGO_URI", "mongodb://localhost:27017")
	metricsAddr = config.GetEnv("METRICS_ADDR", ":9103")
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

	idemStore, err := idempotency.New(redisAddr, idempotency.DefaultTTL)
	if err != nil {
		zapLogger.Fatal("connect to redis", zap.Error(err))
	}
	defer idemStore.Close()

	mongoClient, err := audit.Connect(mongoURI)
	if err != nil {
		zapLogger.Fatal("connect to mongodb", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	auditLog := audit.NewLog(mongoClient)

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

	agentRegistry := registry.New(slogLogger)
	agentRegistry.Register(&agents.FEFOReservationAgent{Store: db})
	agentRegistry.Register(agents.NewSlottingPutawayAgent(db))
	agentRegistry.Register(&agents.LowStockThresholdAgent{Store: db})
	agentRegistry.Register(&agents.ExpirySweepAgent{Store: db})
	agentRegistry.Register(&agents.ABCXYZClassificationAgent{Store: db})
	agentRegistry.Register(&agents.SafetyStockRecalcAgent{Store: db})
	agentRegistry.Register(&agents.CompensationLoggerAgent{})

	rt := runtime.New(agentRegistry, runtime.DefaultConfig())

	ob := outbox.New(db.DB())
	confirmCh := broker.NewConfirmingChannel(ch)

	instrumentedAudit := &instrumentedAuditLog{log: auditLog, m: warehouseMetrics}
	c := consumer.New(ch, confirmCh, rt, ob, idemStore, consumer.DefaultConfig(), slogLogger).
		WithAudit(instrumentedAudit).
		WithRetryCounter(&retryCounter{m: warehouseMetrics})

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slogLogger.Info("consumer starting")
	if err := c.Run(sigCtx); err != nil {
		slogLogger.Error("consumer stopped with error", "error", err)
	}
}
