// Integration coverage for the Mongo-backed audit log, following the store
// package's testcontainers-go pattern: spin a disposable mongo container,
// then exercise Append/ForEvent/RecordSummary against it.
package audit_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/audit"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/runtime"
)

var testURI string

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration tests skipped: %v\n", err)
		os.Exit(0)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "container port: %v\n", err)
		os.Exit(1)
	}
	testURI = fmt.Sprintf("mongodb://%s:%s", host, port.Port())

	os.Exit(m.Run())
}

func TestLog_AppendThenForEvent(t *testing.T) {
	client, err := audit.Connect(testURI)
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	log := audit.NewLog(client)
	run := audit.Run{
		EventID:    "evt-1",
		AgentName:  "fefo-reservation-agent",
		TenantID:   "tenant-1",
		StartedAt:  time.Now().UTC(),
		DurationMs: 12,
		Success:    true,
		Message:    "ok",
	}
	require.NoError(t, log.Append(context.Background(), run))

	runs, err := log.ForEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "fefo-reservation-agent", runs[0].AgentName)
}

func TestLog_RecordSummary_OneRunPerInvocation(t *testing.T) {
	client, err := audit.Connect(testURI)
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	log := audit.NewLog(client)
	summary := runtime.Summary{
		Invocations: []runtime.Invocation{
			{AgentName: "low-stock-threshold-agent", Result: agent.Result{Success: true, Message: "alerted", Envelopes: []envelope.Envelope{{EventID: "derived-1"}}}, Duration: 5 * time.Millisecond},
			{AgentName: "compensation-logger-agent", Result: agent.Result{Success: true, Message: "logged"}, Duration: time.Millisecond},
		},
	}

	require.NoError(t, log.RecordSummary(context.Background(), "evt-2", "tenant-2", time.Now().UTC(), summary))

	runs, err := log.ForEvent(context.Background(), "evt-2")
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
