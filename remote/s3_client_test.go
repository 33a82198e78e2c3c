package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"sbr_monitor/config"
	"sbr_monitor/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	putErr  error
}

func (b *fakeBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return nil, b.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBucket) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func newTestS3Client(b *fakeBucket) *S3Client {
	c := newS3Client(b, "sbr-sync", "docs/", config.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 1, Multiplier: 2})
	c.create.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestS3ClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	c := newTestS3Client(bucket)

	id, err := c.CreateDocument(ctx)
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if !strings.HasPrefix(id, "SBR-") {
		t.Fatalf("id = %q", id)
	}
	if _, ok := bucket.objects["docs/"+id+".json"]; !ok {
		t.Fatalf("object not stored under prefix: %v", bucket.objects)
	}

	got, err := c.ReadDocument(ctx, id)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("new document = %+v, %v", got, err)
	}

	history := []models.Measurement{{ID: "m1", Timestamp: 10, Point: models.PointSBR4, Alerts: []models.Alert{}}}
	if err := c.WriteDocument(ctx, id, history); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	got, err = c.ReadDocument(ctx, id)
	if err != nil || len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("read back %+v, %v", got, err)
	}
}

func TestS3ClientFailures(t *testing.T) {
	ctx := context.Background()
	bucket := &fakeBucket{objects: map[string][]byte{"docs/bad1.json": []byte("not json")}}
	c := newTestS3Client(bucket)

	if _, err := c.ReadDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: expected ErrNotFound, got %v", err)
	}
	if _, err := c.ReadDocument(ctx, "bad1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("malformed: expected ErrNotFound, got %v", err)
	}
	if err := c.WriteDocument(ctx, "x", nil); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("short id: expected ErrInvalidID, got %v", err)
	}

	bucket.putErr = errors.New("access denied")
	if _, err := c.CreateDocument(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if bucket.puts != 3 {
		t.Fatalf("puts = %d, want 3", bucket.puts)
	}
}
