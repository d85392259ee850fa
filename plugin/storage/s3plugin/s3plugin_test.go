package s3plugin_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/crypto"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/s3plugin"
)

const (
	testAccessKey = "minioadmin"
	testSecretKey = "minioadmin"
)

// TestS3Plugin starts a throwaway MinIO container (unless S3_MINIO_ENDPOINT
// is already set, e.g. in CI) and exercises the plugin.StoragePlugin
// contract against it, mirroring the teacher's persist.TestS3Store.
func TestS3Plugin(t *testing.T) {
	endpoint := os.Getenv("S3_MINIO_ENDPOINT")
	if endpoint == "" {
		ctx := context.Background()
		req := testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     testAccessKey,
				"MINIO_ROOT_PASSWORD": testSecretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		}
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		require.NoError(t, err)
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				t.Logf("warning: failed to terminate MinIO container: %v", err)
			}
		}()

		mappedPort, err := container.MappedPort(ctx, "9000")
		require.NoError(t, err)
		endpoint = fmt.Sprintf("localhost:%s", mappedPort.Port())
	} else {
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	}

	p, err := s3plugin.New("s3", true, s3plugin.Config{
		Endpoint:        endpoint,
		AccessKeyID:     testAccessKey,
		SecretAccessKey: testSecretKey,
		Bucket:          "test-secretsd",
		KeyPrefix:       "test",
		Region:          "us-east-1",
	})
	require.NoError(t, err)

	require.NoError(t, p.CreateCollection("coll"))
	require.NoError(t, p.SetSecret("coll", "hashed-name", []byte("ciphertext")))

	data, err := p.GetSecret("coll", "hashed-name")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)

	enc := crypto.New("aescbc", true)
	oldKey := []byte("old-key-that-is-32-bytes-long!!")
	newKey := []byte("new-key-that-is-32-bytes-long!!")
	ciphertext, err := enc.Encrypt([]byte("rotated"), oldKey)
	require.NoError(t, err)
	require.NoError(t, p.SetSecret("coll", "hashed-rot", ciphertext))
	require.NoError(t, p.ReencryptSecrets(plugin.ReencryptTarget{CollectionName: "coll"}, oldKey, newKey, enc))
	rewrapped, err := p.GetSecret("coll", "hashed-rot")
	require.NoError(t, err)
	plaintext, err := enc.Decrypt(rewrapped, newKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("rotated"), plaintext)

	require.NoError(t, p.RemoveSecret("coll", "hashed-name"))
	_, err = p.GetSecret("coll", "hashed-name")
	assert.Error(t, err)

	require.NoError(t, p.RemoveCollection("coll"))
}
