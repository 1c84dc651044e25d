package s3

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TEST_MINIO_ENDPOINT, TEST_MINIO_ACCESS_KEY and TEST_MINIO_SECRET_KEY point at a disposable MinIO.
func TestSaveAndCountFrames(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}

	client, err := NewMinioClient(endpoint, os.Getenv("TEST_MINIO_ACCESS_KEY"), os.Getenv("TEST_MINIO_SECRET_KEY"), "detections-test", false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx))

	frame := frameWith(1, 1)
	frame.SessionID = uuid.NewString()
	require.NoError(t, client.SaveFrame(ctx, frame))
	frame.Tick = 2
	require.NoError(t, client.SaveFrame(ctx, frame))

	count, err := client.CountFrames(ctx, frame.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
