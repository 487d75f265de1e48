//go:build integration

package testutils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/fwslurp/internal/storage"
)

const (
	minioAccessKey = "minioadmin"
	minioSecretKey = "minioadmin"
)

// MinioEnv describes a running Minio container with one bucket.
type MinioEnv struct {
	Container testcontainers.Container
	BucketURL string
	Endpoint  string
}

// OpenStore opens a firmware store on the Minio bucket.
func (e *MinioEnv) OpenStore(ctx context.Context) (*storage.Store, error) {
	return storage.Open(ctx, e.BucketURL)
}

// StartMinio starts Minio with bucketName created. The container and its
// network are removed when the test ends.
func StartMinio(t *testing.T, ctx context.Context, bucketName string) *MinioEnv {
	t.Helper()

	networkName := fmt.Sprintf("fwslurp-minio-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{Name: networkName},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(context.Background()) })

	minio, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          "minio/minio:latest",
			ExposedPorts:   []string{"9000/tcp"},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"minio"}},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioAccessKey,
				"MINIO_ROOT_PASSWORD": minioSecretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio container: %v", err)
	}
	t.Cleanup(func() {
		if err := minio.Terminate(context.Background()); err != nil {
			t.Logf("terminate minio: %v", err)
		}
	})

	makeBucket(t, ctx, networkName, bucketName)

	host, err := minio.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := minio.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}
	endpoint := fmt.Sprintf("%s:%s", host, port.Port())

	t.Setenv("AWS_ACCESS_KEY_ID", minioAccessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioSecretKey)

	return &MinioEnv{
		Container: minio,
		Endpoint:  endpoint,
		BucketURL: fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucketName, endpoint),
	}
}

// makeBucket runs a one-shot mc container that creates the bucket.
func makeBucket(t *testing.T, ctx context.Context, networkName, bucketName string) {
	t.Helper()

	mc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "minio/mc:latest",
			Networks:   []string{networkName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd: []string{fmt.Sprintf(
				"/usr/bin/mc alias set local http://minio:9000 %s %s && /usr/bin/mc mb local/%s",
				minioAccessKey, minioSecretKey, bucketName,
			)},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mc container: %v", err)
	}
	defer mc.Terminate(context.Background())
}
