// Integration coverage for the Redis-backed dedup cache, following the
// store package's testcontainers-go pattern: spin a disposable redis
// container, then exercise SeenBefore against it.
package idempotency_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lucerna-wms/reactor/internal/idempotency"
)

var testAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
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
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "container port: %v\n", err)
		os.Exit(1)
	}
	testAddr = fmt.Sprintf("%s:%s", host, port.Port())

	os.Exit(m.Run())
}

func TestStore_SeenBefore_FirstThenDuplicate(t *testing.T) {
	s, err := idempotency.New(testAddr, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	seen, err := s.SeenBefore(context.Background(), "event-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = s.SeenBefore(context.Background(), "event-1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestStore_SeenBefore_DistinctEventsIndependent(t *testing.T) {
	s, err := idempotency.New(testAddr, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	seenA, err := s.SeenBefore(context.Background(), "event-a")
	require.NoError(t, err)
	require.False(t, seenA)

	seenB, err := s.SeenBefore(context.Background(), "event-b")
	require.NoError(t, err)
	require.False(t, seenB)
}
