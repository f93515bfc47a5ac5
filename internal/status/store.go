package status

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	conf "github.com/akimov/audiopipe/internal/config"
	"github.com/akimov/audiopipe/internal/job"
	"github.com/redis/go-redis/v9"
)

// ErrIllegalTransition is returned when a status write would move a job
// backwards (e.g. completed -> converting).
var ErrIllegalTransition = errors.New("illegal status transition")

// Record is the operator-facing view of a job: the pipeline itself keys
// off queue location, this store exists so progress can be queried
// without inspecting broker internals.
type Record struct {
	Status    job.Status `json:"status"`
	Username  string     `json:"username,omitempty"`
	Mp3FID    string     `json:"mp3_fid,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt string     `json:"updated_at"`
}

type Store struct {
	client    redis.UniversalClient
	namespace string
}

func NewStore(cfg *conf.Redis) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DatabaseID,
		DialTimeout: cfg.DialTimeout * time.Second,
	})
	return &Store{client: client, namespace: "audiopipe:job"}
}

func NewStoreWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client, namespace: "audiopipe:job"}
}

func (s *Store) key(fid string) string { return s.namespace + ":" + fid }

// Set moves a job to a new status, guarding FSM legality against the
// currently stored value. Extra fields are merged into the hash.
func (s *Store) Set(ctx context.Context, fid string, to job.Status, extra map[string]interface{}) error {
	current, err := s.client.HGet(ctx, s.key(fid), "status").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read status for %q: %w", fid, err)
	}

	if !job.CanTransition(job.Status(current), to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, to)
	}

	fields := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err := s.client.HSet(ctx, s.key(fid), fields).Err(); err != nil {
		return fmt.Errorf("write status for %q: %w", fid, err)
	}
	return nil
}

// Delete removes a job record entirely. Used when a submit is rolled
// back before any message referencing the job exists.
func (s *Store) Delete(ctx context.Context, fid string) error {
	if err := s.client.Del(ctx, s.key(fid)).Err(); err != nil {
		return fmt.Errorf("delete record for %q: %w", fid, err)
	}
	return nil
}

// Get returns the stored record, or redis.Nil-backed not-found error if
// the job was never submitted.
func (s *Store) Get(ctx context.Context, fid string) (Record, error) {
	vals, err := s.client.HGetAll(ctx, s.key(fid)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("read record for %q: %w", fid, err)
	}
	if len(vals) == 0 {
		return Record{}, fmt.Errorf("no job with id %q", fid)
	}

	return recordFromHash(fid, vals)
}

// recordFromHash decodes the redis hash fields into a Record. Absent
// optional fields stay zero; a present but unparsable counter is an
// error, not a silent zero.
func recordFromHash(fid string, vals map[string]string) (Record, error) {
	rec := Record{
		Status:    job.Status(vals["status"]),
		Username:  vals["username"],
		Mp3FID:    vals["mp3_fid"],
		Error:     vals["error"],
		UpdatedAt: vals["updated_at"],
	}
	if v, ok := vals["attempts"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Record{}, fmt.Errorf("parse attempts for %q: %w", fid, err)
		}
		rec.Attempts = n
	}
	return rec, nil
}

func (s *Store) Close() error { return s.client.Close() }
