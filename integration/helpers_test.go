//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"oras.land/oras-go/v2/registry/remote"

	"github.com/meigma/pkgload/format"
	"github.com/meigma/pkgload/internal/testutil"
	"github.com/meigma/pkgload/oci"
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

// --- Repository Helpers ---

// newTestRepository opens a repository for a test over plain HTTP.
func newTestRepository(tb testing.TB, registryAddr, testName string) *remote.Repository {
	tb.Helper()
	repo, err := oci.NewRepository(fmt.Sprintf("%s/test/%s", registryAddr, testName), true)
	require.NoError(tb, err, "open repository")
	return repo
}

// --- Package Fixtures ---

// packageSet encodes specs into files named <name>.upk.
func packageSet(tb testing.TB, specs ...format.Spec) []oci.File {
	tb.Helper()
	files := make([]oci.File, 0, len(specs))
	for _, spec := range specs {
		files = append(files, oci.File{Name: spec.Name + ".upk", Data: testutil.BuildPackage(tb, spec)})
	}
	return files
}

// makeCompressibleContent creates content that benefits from compression.
func makeCompressibleContent(size int) []byte {
	pattern := []byte("This is a repeating pattern for compression testing. ")
	result := make([]byte, 0, size)
	for len(result) < size {
		result = append(result, pattern...)
	}
	return result[:size]
}

// gameSet is a small set where Game imports from Core and Engine, and
// Engine imports from Core.
func gameSet(tb testing.TB) []oci.File {
	tb.Helper()
	core := testutil.SimpleSpec("Core", "Object", "Class")
	engine := testutil.SimpleSpec("Engine", "Actor")
	engine.Imports = []format.Import{{Package: "Core", Name: "Object", Class: "Object"}}
	game := format.Spec{
		Name: "Game",
		Exports: []format.ExportSpec{
			{Name: "Level", Class: "Object", Data: makeCompressibleContent(64 << 10), Compression: format.CompressionZstd},
		},
		Imports: []format.Import{
			{Package: "Engine", Name: "Actor", Class: "Object"},
			{Package: "Core", Name: "Class", Class: "Object"},
		},
	}
	return packageSet(tb, core, engine, game)
}
