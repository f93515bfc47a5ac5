package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/akimov/audiopipe/internal/identity"
	"github.com/akimov/audiopipe/internal/job"
	"github.com/akimov/audiopipe/internal/status"
)

type fakeBlobs struct {
	objects map[string][]byte
	nextKey string
	putErr  error
	delErr  error
	ops     *[]string
}

func (f *fakeBlobs) Put(ctx context.Context, payload []byte, contentType string) (string, error) {
	*f.ops = append(*f.ops, "put")
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[f.nextKey] = payload
	return f.nextKey, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	*f.ops = append(*f.ops, "delete")
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, key)
	return nil
}

type fakeBroker struct {
	published  []publishCall
	publishErr error
	ops        *[]string
}

type publishCall struct {
	queue string
	body  []byte
}

func (f *fakeBroker) Publish(ctx context.Context, queue string, body []byte) error {
	*f.ops = append(*f.ops, "publish")
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishCall{queue, body})
	return nil
}

type fakeStatuses struct {
	records map[string]status.Record
	delErr  error
}

func (f *fakeStatuses) Set(ctx context.Context, fid string, to job.Status, extra map[string]interface{}) error {
	rec := f.records[fid]
	rec.Status = to
	if u, ok := extra["username"].(string); ok {
		rec.Username = u
	}
	f.records[fid] = rec
	return nil
}

func (f *fakeStatuses) Delete(ctx context.Context, fid string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.records, fid)
	return nil
}

func (f *fakeStatuses) Get(ctx context.Context, fid string) (status.Record, error) {
	rec, ok := f.records[fid]
	if !ok {
		return status.Record{}, errors.New("no such job")
	}
	return rec, nil
}

type fakeIdentity struct {
	username string
	err      error
}

func (f *fakeIdentity) Login(ctx context.Context, username, password string) (string, error) {
	return "tok", f.err
}

func (f *fakeIdentity) Validate(ctx context.Context, token string) (string, error) {
	return f.username, f.err
}

type harness struct {
	uc     *UseCase
	blobs  *fakeBlobs
	broker *fakeBroker
	stats  *fakeStatuses
	ops    []string
}

func newHarness() *harness {
	h := &harness{}
	h.blobs = &fakeBlobs{objects: map[string][]byte{}, nextKey: "v1", ops: &h.ops}
	h.broker = &fakeBroker{ops: &h.ops}
	h.stats = &fakeStatuses{records: map[string]status.Record{}}
	h.uc = New(h.blobs, h.broker, h.stats, &fakeIdentity{username: "alice"}, "video")
	return h
}

func TestSubmit(t *testing.T) {
	h := newHarness()

	fid, err := h.uc.Submit(context.Background(), []byte("VIDEO_BYTES"), "video/mp4", "tok")
	if err != nil {
		t.Fatalf("Submit() unexpected error: %v", err)
	}
	if fid != "v1" {
		t.Errorf("Submit() fid = %q, want v1", fid)
	}

	if len(h.broker.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(h.broker.published))
	}
	msg := h.broker.published[0]
	if msg.queue != "video" {
		t.Errorf("published to %q, want video", msg.queue)
	}
	j, err := job.Unmarshal(msg.body)
	if err != nil {
		t.Fatalf("published payload not a job: %v", err)
	}
	if j.VideoFID != "v1" || j.Username != "alice" || j.Mp3FID != "" {
		t.Errorf("published job = %+v, want {v1 _ alice}", j)
	}

	rec, err := h.stats.Get(context.Background(), "v1")
	if err != nil || rec.Status != job.StatusSubmitted {
		t.Errorf("status = %+v (err %v), want submitted", rec, err)
	}
}

func TestSubmitStoresBlobBeforePublish(t *testing.T) {
	h := newHarness()

	if _, err := h.uc.Submit(context.Background(), []byte("x"), "video/mp4", "tok"); err != nil {
		t.Fatal(err)
	}

	putAt, publishAt := -1, -1
	for i, op := range h.ops {
		switch op {
		case "put":
			putAt = i
		case "publish":
			publishAt = i
		}
	}
	if putAt == -1 || publishAt == -1 || putAt > publishAt {
		t.Errorf("operation order = %v, blob put must precede queue publish", h.ops)
	}
}

func TestSubmitUnauthorized(t *testing.T) {
	h := newHarness()
	h.uc.identity = &fakeIdentity{err: identity.ErrUnauthorized}

	_, err := h.uc.Submit(context.Background(), []byte("x"), "video/mp4", "bad")
	if !errors.Is(err, identity.ErrUnauthorized) {
		t.Fatalf("Submit() err = %v, want ErrUnauthorized", err)
	}
	if len(h.ops) != 0 {
		t.Errorf("rejected submit produced side effects: %v", h.ops)
	}
}

func TestSubmitStoreFailure(t *testing.T) {
	h := newHarness()
	h.blobs.putErr = errors.New("connection reset")

	_, err := h.uc.Submit(context.Background(), []byte("x"), "video/mp4", "tok")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("Submit() err = %v, want ErrUploadFailed", err)
	}
	for _, op := range h.ops {
		if op == "publish" {
			t.Error("queue publish attempted after store failure")
		}
	}
}

func TestSubmitCompensatesOnPublishFailure(t *testing.T) {
	h := newHarness()
	h.broker.publishErr = errors.New("broker down")

	_, err := h.uc.Submit(context.Background(), []byte("x"), "video/mp4", "tok")
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Fatalf("Submit() err = %v, want ErrEnqueueFailed", err)
	}
	if _, ok := h.blobs.objects["v1"]; ok {
		t.Error("blob not rolled back after publish failure")
	}
	if rec, ok := h.stats.records["v1"]; ok {
		t.Errorf("status record %+v left behind for a job that was never enqueued", rec)
	}
}

func TestSubmitCompensationClearsStatusDespiteBlobFailure(t *testing.T) {
	h := newHarness()
	h.broker.publishErr = errors.New("broker down")
	h.blobs.delErr = errors.New("store down too")

	// Even when the blob rollback itself fails, the status record must
	// not keep reporting a phantom submitted job.
	_, err := h.uc.Submit(context.Background(), []byte("x"), "video/mp4", "tok")
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Fatalf("Submit() err = %v, want ErrEnqueueFailed", err)
	}
	if _, ok := h.stats.records["v1"]; ok {
		t.Error("status record survived compensation")
	}
}

func TestSubmitCompensationBestEffort(t *testing.T) {
	h := newHarness()
	h.broker.publishErr = errors.New("broker down")
	h.blobs.delErr = errors.New("store down too")

	// A failed rollback must not mask the enqueue failure.
	_, err := h.uc.Submit(context.Background(), []byte("x"), "video/mp4", "tok")
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Fatalf("Submit() err = %v, want ErrEnqueueFailed", err)
	}
}
