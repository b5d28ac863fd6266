// Package progress keeps distributed batch counters in Redis.
package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dunamismax/webopt/internal/domain"
)

var ErrBatchNotFound = errors.New("batch not found")

// Snapshot is the state of one batch at a point in time.
type Snapshot struct {
	BatchID     string    `json:"batch_id"`
	Total       int64     `json:"total"`
	Succeeded   int64     `json:"succeeded"`
	Failed      int64     `json:"failed"`
	Failures    []string  `json:"failures,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

func (s Snapshot) Finished() int64 {
	return s.Succeeded + s.Failed
}

func (s Snapshot) Done() bool {
	return s.Total >= 0 && s.Finished() >= s.Total
}

// Tracker counts per-file outcomes of a batch. Each Record is atomic, and
// exactly one Record call observes the batch becoming complete.
type Tracker struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
	script    *redis.Script
}

func NewTracker(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*Tracker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}

	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "webopt:batch"
	}

	return &Tracker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		now:       time.Now,
		script: redis.NewScript(`
local key = KEYS[1]
local failures_key = KEYS[2]
local field = ARGV[1]
local failure_line = ARGV[2]
local ttl_ms = tonumber(ARGV[3])
local now = ARGV[4]

redis.call("HINCRBY", key, field, 1)
if failure_line ~= "" then
  redis.call("RPUSH", failures_key, failure_line)
  redis.call("PEXPIRE", failures_key, ttl_ms)
end
redis.call("PEXPIRE", key, ttl_ms)

local data = redis.call("HMGET", key, "total", "succeeded", "failed")
local total = tonumber(data[1])
local succeeded = tonumber(data[2]) or 0
local failed = tonumber(data[3]) or 0

local completed = 0
if total ~= nil and succeeded + failed >= total then
  completed = redis.call("HSETNX", key, "completed_at", now)
end

if total == nil then
  total = -1
end
return {total, succeeded, failed, completed}
`),
	}, nil
}

func (t *Tracker) key(batchID string) string {
	return fmt.Sprintf("%s:%s", t.keyPrefix, batchID)
}

func (t *Tracker) failuresKey(batchID string) string {
	return fmt.Sprintf("%s:%s:failures", t.keyPrefix, batchID)
}

// Start registers a batch of total files. It must run before any task of the
// batch is enqueued so that completion is never observed early.
func (t *Tracker) Start(ctx context.Context, batchID string, total int) error {
	if strings.TrimSpace(batchID) == "" {
		return fmt.Errorf("batch id is required")
	}

	key := t.key(batchID)
	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key,
		"total", total,
		"succeeded", 0,
		"failed", 0,
		"started_at", t.now().UTC().Format(time.RFC3339Nano),
	)
	pipe.PExpire(ctx, key, t.ttl)
	if total == 0 {
		pipe.HSetNX(ctx, key, "completed_at", t.now().UTC().Format(time.RFC3339Nano))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("start batch %s: %w", batchID, err)
	}
	return nil
}

// Record counts one final per-file outcome. completed is true only for the
// call that brought the batch to its total.
func (t *Tracker) Record(ctx context.Context, batchID string, r domain.FileResult) (Snapshot, bool, error) {
	field := "succeeded"
	failureLine := ""
	if !r.OK() {
		field = "failed"
		failureLine = FailureLine(r)
	}

	raw, err := t.script.Run(
		ctx,
		t.client,
		[]string{t.key(batchID), t.failuresKey(batchID)},
		field,
		failureLine,
		t.ttl.Milliseconds(),
		t.now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("run progress script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 4 {
		return Snapshot{}, false, fmt.Errorf("invalid progress response")
	}

	parsed := make([]int64, len(values))
	for i, v := range values {
		n, err := toInt64(v)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("parse progress value %d: %w", i, err)
		}
		parsed[i] = n
	}

	return Snapshot{
		BatchID:   batchID,
		Total:     parsed[0],
		Succeeded: parsed[1],
		Failed:    parsed[2],
	}, parsed[3] == 1, nil
}

// Snapshot reads the current counters and failure lines of a batch.
func (t *Tracker) Snapshot(ctx context.Context, batchID string) (Snapshot, error) {
	fields, err := t.client.HGetAll(ctx, t.key(batchID)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read batch %s: %w", batchID, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	failures, err := t.client.LRange(ctx, t.failuresKey(batchID), 0, -1).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read batch failures %s: %w", batchID, err)
	}

	return parseSnapshot(batchID, fields, failures)
}

func parseSnapshot(batchID string, fields map[string]string, failures []string) (Snapshot, error) {
	s := Snapshot{BatchID: batchID, Total: -1, Failures: failures}

	for name, dst := range map[string]*int64{"total": &s.Total, "succeeded": &s.Succeeded, "failed": &s.Failed} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = n
	}

	for name, dst := range map[string]*time.Time{"started_at": &s.StartedAt, "completed_at": &s.CompletedAt} {
		raw, ok := fields[name]
		if !ok || raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = ts
	}

	return s, nil
}

// FailureLine renders a failed result as "name [reason]: error".
func FailureLine(r domain.FileResult) string {
	reason := r.Reason
	if reason == "" {
		reason = domain.ReasonUnknown
	}
	return fmt.Sprintf("%s [%s]: %s", r.Name, reason, r.Error)
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
