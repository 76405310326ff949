// Package common provides shared container fixtures for storage tests
package common

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container is a started testcontainers instance shared by a test process
type Container struct {
	container testcontainers.Container
	host      string
	port      string
}

type sharedContainer struct {
	once sync.Once
	c    *Container
	err  error
}

var (
	surreal  sharedContainer
	postgres sharedContainer
)

// start launches the request once per process and records the mapped port.
func (s *sharedContainer) start(t *testing.T, name string, req testcontainers.ContainerRequest, port string) *Container {
	t.Helper()

	if testing.Short() {
		t.Skipf("%s container tests skipped in -short mode", name)
	}

	s.once.Do(func() {
		ctx := context.Background()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			s.err = fmt.Errorf("start %s container: %w", name, err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			s.err = fmt.Errorf("get %s host: %w", name, err)
			return
		}

		mappedPort, err := container.MappedPort(ctx, nat.Port(port))
		if err != nil {
			container.Terminate(ctx)
			s.err = fmt.Errorf("get %s port: %w", name, err)
			return
		}

		s.c = &Container{container: container, host: host, port: mappedPort.Port()}
	})

	if s.err != nil {
		// No docker daemon on this machine
		t.Skipf("%s container unavailable: %v", name, s.err)
	}
	return s.c
}

// StartSurrealDB starts a shared SurrealDB container for the test run.
func StartSurrealDB(t *testing.T) *Container {
	t.Helper()
	return surreal.start(t, "SurrealDB", testcontainers.ContainerRequest{
		Image:        "surrealdb/surrealdb:v3.0.0",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"start", "--user", "root", "--pass", "root"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("8000/tcp"),
			wait.ForLog("Started web server"),
		).WithDeadline(60 * time.Second),
	}, "8000/tcp")
}

// StartPostgres starts a shared PostgreSQL container for the test run.
func StartPostgres(t *testing.T) *Container {
	t.Helper()
	return postgres.start(t, "PostgreSQL", testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tickermetrics",
			"POSTGRES_PASSWORD": "tickermetrics",
			"POSTGRES_DB":       "tickermetrics",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(60 * time.Second),
	}, "5432/tcp")
}

// SurrealAddress returns the WebSocket RPC address for SurrealDB.
func (c *Container) SurrealAddress() string {
	return fmt.Sprintf("ws://%s:%s/rpc", c.host, c.port)
}

// PostgresDSN returns a connection string for the PostgreSQL container.
func (c *Container) PostgresDSN() string {
	return fmt.Sprintf("postgres://tickermetrics:tickermetrics@%s:%s/tickermetrics?sslmode=disable", c.host, c.port)
}

// Cleanup terminates the container. Call from TestMain if needed.
func (c *Container) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}
