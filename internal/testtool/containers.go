// Package testtool starts throwaway backing services for integration tests.
package testtool

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Terminate stops a container started by this package.
type Terminate func(ctx context.Context) error

// SetupContainer starts req and returns the host and mapped port of its first exposed
// port. A missing or broken Docker daemon is returned as an error, never a panic.
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (container testcontainers.Container, host, port string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker unavailable: %v", r)
		}
	}()

	container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err = container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", "", err
	}

	mapped, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", "", err
	}
	return container, host, mapped.Port(), nil
}

// StartPostgres runs an empty PostgreSQL and returns its DSN.
func StartPostgres(ctx context.Context) (string, Terminate, error) {
	container, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "messenger",
		},
		ExposedPorts: []string{"5432/tcp"},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	if err != nil {
		return "", nil, err
	}
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/messenger?sslmode=disable", host, port)
	return dsn, container.Terminate, nil
}

// StartRedis runs an empty Redis and returns its address.
func StartRedis(ctx context.Context) (string, Terminate, error) {
	container, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		return "", nil, err
	}
	return host + ":" + port, container.Terminate, nil
}
