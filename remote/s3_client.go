package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"sbr_monitor/config"
	"sbr_monitor/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectAPI is the subset of the S3 client used here
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Client keeps each document as a JSON object <prefix><id>.json in a bucket.
// Works with any S3-compatible store (MinIO, R2) through Endpoint.
type S3Client struct {
	api    objectAPI
	bucket string
	prefix string
	create Backoff
}

// NewS3Client loads AWS configuration (static keys when given, otherwise the
// default credential chain) and builds the client
func NewS3Client(ctx context.Context, cfg config.S3ProviderConfig, retry config.RetryConfig) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return newS3Client(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, retry), nil
}

func newS3Client(api objectAPI, bucket, prefix string, retry config.RetryConfig) *S3Client {
	return &S3Client{api: api, bucket: bucket, prefix: prefix, create: NewBackoff(retry)}
}

func (c *S3Client) key(id string) string {
	return c.prefix + id + ".json"
}

// CreateDocument picks a fresh identifier and stores an empty history under it
func (c *S3Client) CreateDocument(ctx context.Context) (string, error) {
	id := models.GenerateSyncID()
	attempts, err := c.create.Do(ctx, func(int) error {
		return c.put(ctx, id, []byte("[]"))
	})
	if err != nil {
		return "", fmt.Errorf("create document after %d attempt(s): %w", attempts, err)
	}
	return id, nil
}

// WriteDocument overwrites the object with history
func (c *S3Client) WriteDocument(ctx context.Context, id string, history []models.Measurement) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	body, err := EncodeHistory(history, "")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return c.put(ctx, id, body)
}

func (c *S3Client) put(ctx context.Context, id string, body []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.key(id)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: S3 put object: %v", ErrUnavailable, err)
	}
	return nil
}

// ReadDocument fetches the object. A missing key, any S3 error or a
// malformed body is reported as ErrNotFound.
func (c *S3Client) ReadDocument(ctx context.Context, id string) ([]models.Measurement, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(id)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: no object for %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: S3 get object: %v", ErrNotFound, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: S3 read body: %v", ErrNotFound, err)
	}
	history, err := DecodeHistory(data, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return history, nil
}
