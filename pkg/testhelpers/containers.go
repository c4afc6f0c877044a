// Package testhelpers provides a shared disposable PostgreSQL container for
// integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pgvet-io/pgvet-engine/pkg/database"
)

// SandboxImage is the PostgreSQL image integration tests run against.
const SandboxImage = "postgres:16-alpine"

// TestSandbox holds the shared sandbox container for the test run.
type TestSandbox struct {
	Container testcontainers.Container
	ConnStr   string
}

var (
	sharedSandbox     *TestSandbox
	sharedSandboxOnce sync.Once
	sharedSandboxErr  error
)

// GetSandbox returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetSandbox(t *testing.T) *TestSandbox {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedSandboxOnce.Do(func() {
		sharedSandbox, sharedSandboxErr = setupSandbox()
	})

	if sharedSandboxErr != nil {
		t.Fatalf("Failed to setup sandbox container: %v", sharedSandboxErr)
	}

	return sharedSandbox
}

func setupSandbox() (*TestSandbox, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        SandboxImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "pgvet_sandbox",
			"POSTGRES_USER":     "pgvet",
			"POSTGRES_PASSWORD": "pgvet",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start sandbox container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://pgvet:pgvet@%s:%s/pgvet_sandbox?sslmode=disable",
		host, port.Port())

	return &TestSandbox{Container: container, ConnStr: connStr}, nil
}

// ConnectSandbox opens a sandbox connection to the shared container and
// closes it when the test finishes.
func ConnectSandbox(t *testing.T) *database.Sandbox {
	t.Helper()

	ts := GetSandbox(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sb, err := database.Connect(ctx, ts.ConnStr, nil)
	if err != nil {
		t.Fatalf("Failed to connect to sandbox: %v", err)
	}
	t.Cleanup(func() {
		_ = sb.Close(context.Background())
	})
	return sb
}
