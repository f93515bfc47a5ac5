package worker

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"

	"github.com/akimov/audiopipe/internal/blob"
	"github.com/akimov/audiopipe/internal/job"
	"github.com/akimov/audiopipe/internal/queue"
	"github.com/getsentry/sentry-go"
	amqp "github.com/rabbitmq/amqp091-go"
)

// transformVersion is baked into derived mp3 keys so that changing the
// extraction settings produces new objects instead of silently reusing
// stale ones.
const transformVersion = "v1"

type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	PutKeyed(ctx context.Context, key string, payload []byte, contentType string) error
}

type Broker interface {
	PublishWithAttempts(ctx context.Context, queueName string, body []byte, attempts int) error
}

type Extractor interface {
	Extract(ctx context.Context, video []byte) ([]byte, error)
}

type StatusStore interface {
	Set(ctx context.Context, fid string, to job.Status, extra map[string]interface{}) error
}

type Config struct {
	VideoQueue  string
	Mp3Queue    string
	MaxAttempts int
}

// Worker consumes jobs from the video queue, extracts the audio track
// and hands the result to the mp3 queue. One delivery is fully processed
// before the next is accepted; scaling means more worker processes.
type Worker struct {
	cfg      Config
	blobs    BlobStore
	broker   Broker
	extract  Extractor
	statuses StatusStore
}

func New(cfg Config, blobs BlobStore, broker Broker, extract Extractor, statuses StatusStore) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		cfg:      cfg,
		blobs:    blobs,
		broker:   broker,
		extract:  extract,
		statuses: statuses,
	}
}

// Run drains the delivery stream until the context is canceled or the
// channel closes (broker connection lost).
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	log.Printf("[worker] consuming queue=%s max_attempts=%d", w.cfg.VideoQueue, w.cfg.MaxAttempts)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

// handle settles exactly one delivery: ack after a confirmed downstream
// publish, reject to the DLQ on permanent failure, or requeue with an
// incremented attempt counter on transient failure. The inbound message
// is never acknowledged before the outbound one is durably published.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	j, err := job.Unmarshal(d.Body)
	if err != nil {
		// Malformed payloads cannot be fixed by redelivery.
		w.deadLetter(ctx, d, "", fmt.Errorf("malformed job payload: %w", err))
		return
	}

	w.setStatus(ctx, j.VideoFID, job.StatusConverting, map[string]interface{}{
		"attempts": queue.Attempts(d) + 1,
	})

	err = w.process(ctx, &j)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			// The mp3 message is already out; redelivery of the video
			// message converges to the same output key.
			log.Printf("[worker] ack failed for %s: %v", j.VideoFID, ackErr)
		}
		w.setStatus(ctx, j.VideoFID, job.StatusCompleted, map[string]interface{}{
			"mp3_fid": j.Mp3FID, "error": "",
		})
		log.Printf("[worker] job completed video_fid=%s mp3_fid=%s", j.VideoFID, j.Mp3FID)

	case errors.Is(err, blob.ErrNotFound):
		// The referenced blob will never appear.
		w.deadLetter(ctx, d, j.VideoFID, err)

	default:
		w.retry(ctx, d, j.VideoFID, err)
	}
}

// process runs steps 2-5 of the pipeline: fetch, transform, store,
// publish. On success j.Mp3FID is set and the mp3 message is confirmed
// durable by the broker.
func (w *Worker) process(ctx context.Context, j *job.Job) error {
	video, _, err := w.blobs.Get(ctx, j.VideoFID)
	if err != nil {
		return fmt.Errorf("fetch video %s: %w", j.VideoFID, err)
	}

	audio, err := w.extract.Extract(ctx, video)
	if err != nil {
		return fmt.Errorf("extract audio from %s: %w", j.VideoFID, err)
	}

	// The output key is derived from the input content, so a redelivered
	// job overwrites the same object instead of creating a duplicate.
	key := mp3Key(video)
	if err := w.blobs.PutKeyed(ctx, key, audio, "audio/mpeg"); err != nil {
		return fmt.Errorf("store audio for %s: %w", j.VideoFID, err)
	}

	j.Mp3FID = key
	body, err := j.Marshal()
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.VideoFID, err)
	}
	if err := w.broker.PublishWithAttempts(ctx, w.cfg.Mp3Queue, body, 0); err != nil {
		return fmt.Errorf("publish mp3 job for %s: %w", j.VideoFID, err)
	}
	return nil
}

// retry republishes the delivery with an incremented attempt counter and
// only then acks the original, so the job is always durably in exactly
// one place. Exhausted retries go to the DLQ.
func (w *Worker) retry(ctx context.Context, d amqp.Delivery, fid string, cause error) {
	attempts := queue.Attempts(d) + 1
	if attempts >= w.cfg.MaxAttempts {
		w.deadLetter(ctx, d, fid, fmt.Errorf("retries exhausted after %d attempts: %w", attempts, cause))
		return
	}

	log.Printf("[worker] transient failure (attempt %d/%d) fid=%s: %v",
		attempts, w.cfg.MaxAttempts, fid, cause)

	if err := w.broker.PublishWithAttempts(ctx, w.cfg.VideoQueue, d.Body, attempts); err != nil {
		// Fall back to broker redelivery; the counter stalls this round.
		log.Printf("[worker] retry republish failed for %s, requeueing: %v", fid, err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// deadLetter quarantines a permanently failed delivery: copy to the DLQ,
// then reject without requeue. If even the DLQ publish fails the message
// goes back to the queue rather than being lost.
func (w *Worker) deadLetter(ctx context.Context, d amqp.Delivery, fid string, cause error) {
	log.Printf("[worker] dead-lettering fid=%s: %v", fid, cause)
	sentry.CaptureException(fmt.Errorf("dead-lettered job %s: %w", fid, cause))

	if err := w.broker.PublishWithAttempts(ctx, queue.DLQName(w.cfg.VideoQueue), d.Body, queue.Attempts(d)); err != nil {
		log.Printf("[worker] DLQ publish failed for %s, requeueing: %v", fid, err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Reject(false)

	if fid != "" {
		w.setStatus(ctx, fid, job.StatusDeadLettered, map[string]interface{}{
			"error": cause.Error(),
		})
	}
}

func (w *Worker) setStatus(ctx context.Context, fid string, to job.Status, extra map[string]interface{}) {
	if fid == "" {
		return
	}
	if err := w.statuses.Set(ctx, fid, to, extra); err != nil {
		log.Printf("[worker] status write for %s failed: %v", fid, err)
	}
}

func mp3Key(video []byte) string {
	sum := sha256.Sum256(video)
	return fmt.Sprintf("%x-%s.mp3", sum, transformVersion)
}
