//go:build integration

package e2e

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

var testLogger, _ = zap.NewDevelopment()

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("agent_memory_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	return "redis://" + endpoint, cleanup(container, ctx), nil
}

// startQdrant starts a Qdrant testcontainer via the generic container API
// (there is no dedicated testcontainers-go module for it), returns
// host/port + cleanup func.
func startQdrant(ctx context.Context) (string, int, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.9.2",
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor:   nil,
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", 0, nil, fmt.Errorf("start qdrant: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", 0, nil, fmt.Errorf("qdrant host: %w", err)
	}
	port, err := container.MappedPort(ctx, "6334")
	if err != nil {
		container.Terminate(ctx)
		return "", 0, nil, fmt.Errorf("qdrant port: %w", err)
	}
	return host, port.Int(), cleanup(container, ctx), nil
}

func cleanup(c testcontainers.Container, ctx context.Context) func() {
	return func() { c.Terminate(ctx) }
}
