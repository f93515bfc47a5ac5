package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/akimov/audiopipe/internal/job"
	"github.com/akimov/audiopipe/internal/status"
	"github.com/getsentry/sentry-go"
)

var (
	// ErrUploadFailed means the blob store rejected the payload; nothing
	// was enqueued.
	ErrUploadFailed = errors.New("upload failed")
	// ErrEnqueueFailed means the blob was written but the queue publish
	// failed; the blob has been rolled back (best effort).
	ErrEnqueueFailed = errors.New("enqueue failed")
)

type BlobStore interface {
	Put(ctx context.Context, payload []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type Broker interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type StatusStore interface {
	Set(ctx context.Context, fid string, to job.Status, extra map[string]interface{}) error
	Get(ctx context.Context, fid string) (status.Record, error)
	Delete(ctx context.Context, fid string) error
}

type Identity interface {
	Login(ctx context.Context, username, password string) (string, error)
	Validate(ctx context.Context, token string) (string, error)
}

type UseCase struct {
	blobs      BlobStore
	broker     Broker
	statuses   StatusStore
	identity   Identity
	videoQueue string
}

func New(blobs BlobStore, broker Broker, statuses StatusStore, identity Identity, videoQueue string) *UseCase {
	return &UseCase{
		blobs:      blobs,
		broker:     broker,
		statuses:   statuses,
		identity:   identity,
		videoQueue: videoQueue,
	}
}

// Login exchanges credentials for a token via the auth service.
func (c *UseCase) Login(ctx context.Context, username, password string) (string, error) {
	return c.identity.Login(ctx, username, password)
}

// Status returns the stored progress record for an upload.
func (c *UseCase) Status(ctx context.Context, fid string) (status.Record, error) {
	return c.statuses.Get(ctx, fid)
}

// Submit runs the upload flow: resolve identity, commit the blob, then
// publish the job. The order is load-bearing: the message must never be
// visible before its blob exists, and a failed publish rolls the blob
// back so no orphan is left behind.
func (c *UseCase) Submit(ctx context.Context, payload []byte, contentType, token string) (string, error) {
	username, err := c.identity.Validate(ctx, token)
	if err != nil {
		return "", err
	}

	fid, err := c.blobs.Put(ctx, payload, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	// Status writes are observability, not correctness; the queues stay
	// the source of truth, so a failure here only gets logged.
	if err := c.statuses.Set(ctx, fid, job.StatusSubmitted, map[string]interface{}{"username": username}); err != nil {
		log.Printf("[gateway] status write for %s failed: %v", fid, err)
	}

	msg := job.Job{VideoFID: fid, Username: username}
	body, err := msg.Marshal()
	if err != nil {
		return "", fmt.Errorf("%w: marshal job: %v", ErrEnqueueFailed, err)
	}

	if err := c.broker.Publish(ctx, c.videoQueue, body); err != nil {
		// Compensate so the store holds no blob that no job references.
		// The gateway does not own store consistency, so a failed delete
		// is reported and left for out-of-band cleanup.
		if delErr := c.blobs.Delete(ctx, fid); delErr != nil {
			log.Printf("[gateway] orphaned blob %s: rollback failed: %v", fid, delErr)
			sentry.CaptureException(fmt.Errorf("orphaned blob %s: %w", fid, delErr))
		}
		// The status record would otherwise describe a job that was never
		// enqueued, stuck in submitted forever.
		if delErr := c.statuses.Delete(ctx, fid); delErr != nil {
			log.Printf("[gateway] status cleanup for %s failed: %v", fid, delErr)
		}
		return "", fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	return fid, nil
}
