//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10/part10test"
	"github.com/meigma/dicomblob/registry"
)

// --- Registry Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container if needed.
// The container is shared across all tests for performance.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})

	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}

	return registryAddr
}

// startRegistryContainer starts a registry:2 container and returns the host:port address.
func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	// Cleanup is left to the testcontainers reaper.

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Test Client Factory ---

// newRegistryClient creates a registry client for the local test registry.
func newRegistryClient(tb testing.TB) *registry.Client {
	tb.Helper()
	return registry.New(registry.WithPlainHTTP(true), registry.WithAnonymous())
}

// testRepository returns a repository unique to the test.
func testRepository(addr, testName string) string {
	return path.Join(addr, "test", testName)
}

// --- Test Data Helpers ---

// fixtureIDs are the instances of the standard test series.
var fixtureIDs = []core.ResourceIdentifier{
	core.NewResourceIdentifier("1.2.826.0.1", "1.2.826.0.1.1", "1.2.826.0.1.1.1"),
	core.NewResourceIdentifier("1.2.826.0.1", "1.2.826.0.1.1", "1.2.826.0.1.1.2"),
}

// fixtures returns a Part 10 object for each of fixtureIDs.
func fixtures(tb testing.TB) map[core.ResourceIdentifier][]byte {
	tb.Helper()
	out := make(map[core.ResourceIdentifier][]byte, len(fixtureIDs))
	for _, id := range fixtureIDs {
		out[id] = part10test.Bytes(tb, part10test.Options{ID: id})
	}
	return out
}
