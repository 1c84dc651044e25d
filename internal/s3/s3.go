package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Capitan-Parrot/animal-detection/internal/simulator"
)

type Client struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, bucket string, secure bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func frameKey(sessionID string, tick int64) string {
	return fmt.Sprintf("%s/%08d.json", sessionID, tick)
}

// SaveFrame сохраняет кадр с детекциями в папку сессии под номером тика
func (c *Client) SaveFrame(ctx context.Context, frame simulator.Frame) error {
	jsonData, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	_, err = c.client.PutObject(
		ctx,
		c.bucket,
		frameKey(frame.SessionID, frame.Tick),
		bytes.NewReader(jsonData),
		int64(len(jsonData)),
		minio.PutObjectOptions{
			ContentType: "application/json",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to save frame to S3: %w", err)
	}

	return nil
}

// CountFrames возвращает количество сохранённых кадров сессии
func (c *Client) CountFrames(ctx context.Context, sessionID string) (int, error) {
	count := 0
	objectCh := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    sessionID + "/",
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return 0, fmt.Errorf("error listing objects: %w", object.Err)
		}

		if strings.HasSuffix(object.Key, "/") {
			continue
		}

		count++
	}

	return count, nil
}
