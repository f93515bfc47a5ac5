package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	conf "github.com/akimov/audiopipe/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no blob exists under the given id.
var ErrNotFound = errors.New("blob not found")

// Store holds binary payloads in an S3-compatible bucket. Blobs are
// immutable once written; ids are opaque to callers.
type Store struct {
	Bucket string
	Region string

	MaxRetries     int
	RetryBaseDelay time.Duration

	S3Client *s3.Client
	Uploader *manager.Uploader
}

func NewStore(cfg *conf.Blob) (*Store, error) {
	s := &Store{
		Bucket:         cfg.Bucket,
		Region:         cfg.Region,
		MaxRetries:     3,
		RetryBaseDelay: 300 * time.Millisecond,
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
		awsconfig.WithRegion(s.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.S3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	s.Uploader = manager.NewUploader(s.S3Client)

	log.Println("[blob] client initialized, bucket:", s.Bucket)
	return s, nil
}

// Put stores payload under a fresh id and returns it. The id is opaque;
// nothing outside this package may assume its format.
func (s *Store) Put(ctx context.Context, payload []byte, contentType string) (string, error) {
	key := uuid.NewString()
	if err := s.PutKeyed(ctx, key, payload, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// PutKeyed stores payload under a caller-chosen key. Writing the same key
// twice overwrites the object with identical content, which is how the
// worker keeps redelivered jobs from piling up duplicate outputs.
func (s *Store) PutKeyed(ctx context.Context, key string, payload []byte, contentType string) error {
	var err error
	for attempt := 1; ; attempt++ {
		_, err = s.Uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String(contentType),
		})
		if err == nil {
			return nil
		}
		if attempt > s.MaxRetries || ctx.Err() != nil {
			break
		}

		timer := time.NewTimer(s.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to store %q: %w", key, err)
}

func (s *Store) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	return delay - (jitter / 2) + time.Duration(int64(jitter)*time.Now().UnixNano()%2)
}

// Get fetches a blob and its content type. Returns ErrNotFound when the
// id references nothing; any other failure is transient from the
// caller's point of view.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read body for %q: %w", key, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return buf.Bytes(), contentType, nil
}

// Delete removes a blob. Deleting an id that does not exist is not an
// error; S3 delete is a no-op in that case, which matches the contract.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
