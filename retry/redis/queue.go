package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of retry.Queue
 * Entries live in hashes; the pending index is a ZSET scored by
 * next-attempt time, the dead-letter index a ZSET scored by creation time.
 * Claiming runs in a Lua script so concurrent workers never take the same
 * entry.
 */

const (
	entryPrefix   = "retry:entry" // Hash naming: retry:entry:{id}
	pendingKey    = "retry:pending"
	processingKey = "retry:processing"
	deadLetterKey = "retry:deadletter"
	completedKey  = "retry:completed"
)

// dequeueScript claims due pending ids: removes them from the pending index,
// adds them to the processing set, and flips the hash status.
// KEYS[1]=pending zset, KEYS[2]=processing set, ARGV[1]=now ms, ARGV[2]=limit, ARGV[3]=entry prefix
var dequeueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('SADD', KEYS[2], id)
  redis.call('HSET', ARGV[3] .. ':' .. id, 'status', 'processing')
end
return due
`)

// reprocessScript moves a dead-letter id back to pending with attempts reset.
// KEYS[1]=deadletter zset, KEYS[2]=pending zset, ARGV[1]=id, ARGV[2]=now ms, ARGV[3]=entry prefix
var reprocessScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', ARGV[3] .. ':' .. ARGV[1], 'status', 'pending', 'attempts', 0, 'next_attempt_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

type Queue struct {
	client *redis.Client
}

// NewQueue creates a Redis-backed retry queue
func NewQueue(addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// NewQueueWithClient wraps an existing client, sharing its connection pool
func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue stores a new pending entry and indexes it by next-attempt time
func (q *Queue) Enqueue(ctx context.Context, entry retry.Entry) error {
	entry.Status = retry.Pending

	fields, err := entryFields(entry)
	if err != nil {
		return fmt.Errorf("serializing retry entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, entryKey(entry.ID), fields)
	pipe.ZAdd(ctx, pendingKey, redis.Z{
		Score:  float64(entry.NextAttemptAt.UnixMilli()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueueing retry entry: %w", err)
	}
	return nil
}

// Dequeue claims up to limit due entries via the claim script
func (q *Queue) Dequeue(ctx context.Context, limit int) ([]retry.Entry, error) {
	ids, err := dequeueScript.Run(ctx, q.client,
		[]string{pendingKey, processingKey},
		time.Now().UnixMilli(), limit, entryPrefix,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming due entries: %w", err)
	}

	entries := make([]retry.Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := q.load(ctx, id)
		if err != nil {
			return entries, fmt.Errorf("loading claimed entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Requeue returns a claimed entry to the pending index
func (q *Queue) Requeue(ctx context.Context, entry retry.Entry) error {
	entry.Status = retry.Pending

	fields, err := entryFields(entry)
	if err != nil {
		return fmt.Errorf("serializing retry entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, entryKey(entry.ID), fields)
	pipe.SRem(ctx, processingKey, entry.ID)
	pipe.ZAdd(ctx, pendingKey, redis.Z{
		Score:  float64(entry.NextAttemptAt.UnixMilli()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeueing retry entry: %w", err)
	}
	return nil
}

// Complete removes a finished entry and bumps the completed counter
func (q *Queue) Complete(ctx context.Context, id string) error {
	exists, err := q.client.Exists(ctx, entryKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking retry entry: %w", err)
	}
	if exists == 0 {
		return retry.ErrNotFound
	}

	pipe := q.client.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	pipe.SRem(ctx, processingKey, id)
	pipe.ZRem(ctx, pendingKey, id)
	pipe.Incr(ctx, completedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("completing retry entry: %w", err)
	}
	return nil
}

// MoveToDeadLetter moves an entry into the dead-letter index
func (q *Queue) MoveToDeadLetter(ctx context.Context, entry retry.Entry) error {
	entry.Status = retry.DeadLetter

	fields, err := entryFields(entry)
	if err != nil {
		return fmt.Errorf("serializing retry entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, entryKey(entry.ID), fields)
	pipe.SRem(ctx, processingKey, entry.ID)
	pipe.ZRem(ctx, pendingKey, entry.ID)
	pipe.ZAdd(ctx, deadLetterKey, redis.Z{
		Score:  float64(entry.CreatedAt.UnixMilli()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-lettering retry entry: %w", err)
	}
	return nil
}

// ReprocessDeadLetter moves a dead-letter entry back to pending with
// attempts reset and immediate eligibility
func (q *Queue) ReprocessDeadLetter(ctx context.Context, id string) (retry.Entry, error) {
	moved, err := reprocessScript.Run(ctx, q.client,
		[]string{deadLetterKey, pendingKey},
		id, time.Now().UnixMilli(), entryPrefix,
	).Int()
	if err != nil {
		return retry.Entry{}, fmt.Errorf("reprocessing dead letter: %w", err)
	}
	if moved == 0 {
		return retry.Entry{}, retry.ErrNotFound
	}
	return q.load(ctx, id)
}

// Get returns an entry by id
func (q *Queue) Get(ctx context.Context, id string) (retry.Entry, error) {
	return q.load(ctx, id)
}

// DeadLetters lists up to limit dead-letter entries, oldest first
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]retry.Entry, error) {
	ids, err := q.client.ZRange(ctx, deadLetterKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}

	entries := make([]retry.Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := q.load(ctx, id)
		if err != nil {
			return entries, fmt.Errorf("loading dead letter %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Stats reports counts per status plus pending-age bounds
func (q *Queue) Stats(ctx context.Context) (retry.Stats, error) {
	pipe := q.client.Pipeline()
	pendingCmd := pipe.ZCard(ctx, pendingKey)
	processingCmd := pipe.SCard(ctx, processingKey)
	deadCmd := pipe.ZCard(ctx, deadLetterKey)
	completedCmd := pipe.Get(ctx, completedKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, pendingKey, 0, 0)
	newestCmd := pipe.ZRangeWithScores(ctx, pendingKey, -1, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return retry.Stats{}, fmt.Errorf("collecting queue stats: %w", err)
	}

	stats := retry.Stats{
		Pending:    pendingCmd.Val(),
		Processing: processingCmd.Val(),
		DeadLetter: deadCmd.Val(),
	}
	if completed, err := strconv.ParseInt(completedCmd.Val(), 10, 64); err == nil {
		stats.Completed = completed
	}
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		at := time.UnixMilli(int64(oldest[0].Score))
		stats.OldestPending = &at
	}
	if newest := newestCmd.Val(); len(newest) > 0 {
		at := time.UnixMilli(int64(newest[0].Score))
		stats.NewestPending = &at
	}
	return stats, nil
}

// Close releases the Redis connection
func (q *Queue) Close(ctx context.Context) error {
	return q.client.Close()
}

func entryKey(id string) string {
	return fmt.Sprintf("%s:%s", entryPrefix, id)
}

func entryFields(entry retry.Entry) (map[string]interface{}, error) {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	fields := map[string]interface{}{
		"id":              entry.ID,
		"source":          entry.Source,
		"event_id":        entry.EventID,
		"event_type":      entry.EventType,
		"payload":         entry.Payload,
		"attempts":        entry.Attempts,
		"max_attempts":    entry.MaxAttempts,
		"next_attempt_at": entry.NextAttemptAt.UnixMilli(),
		"created_at":      entry.CreatedAt.UnixMilli(),
		"last_error":      entry.LastError,
		"metadata":        string(metadata),
		"status":          entry.Status.String(),
	}
	if entry.LastAttemptAt != nil {
		fields["last_attempt_at"] = entry.LastAttemptAt.UnixMilli()
	}
	return fields, nil
}

func (q *Queue) load(ctx context.Context, id string) (retry.Entry, error) {
	data, err := q.client.HGetAll(ctx, entryKey(id)).Result()
	if err != nil {
		return retry.Entry{}, fmt.Errorf("getting retry entry: %w", err)
	}
	if len(data) == 0 {
		return retry.Entry{}, retry.ErrNotFound
	}

	entry := retry.Entry{
		ID:        data["id"],
		Source:    data["source"],
		EventID:   data["event_id"],
		EventType: data["event_type"],
		Payload:   []byte(data["payload"]),
		LastError: data["last_error"],
		Status:    retry.NewStatus(data["status"]),
	}

	if entry.ID == "" {
		entry.ID = id
	}
	if raw := data["attempts"]; raw != "" {
		if entry.Attempts, err = strconv.Atoi(raw); err != nil {
			return retry.Entry{}, fmt.Errorf("parsing attempts: %w", err)
		}
	}
	if raw := data["max_attempts"]; raw != "" {
		if entry.MaxAttempts, err = strconv.Atoi(raw); err != nil {
			return retry.Entry{}, fmt.Errorf("parsing max_attempts: %w", err)
		}
	}
	if raw := data["next_attempt_at"]; raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return retry.Entry{}, fmt.Errorf("parsing next_attempt_at: %w", err)
		}
		entry.NextAttemptAt = time.UnixMilli(millis)
	}
	if raw := data["created_at"]; raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return retry.Entry{}, fmt.Errorf("parsing created_at: %w", err)
		}
		entry.CreatedAt = time.UnixMilli(millis)
	}
	if raw := data["last_attempt_at"]; raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return retry.Entry{}, fmt.Errorf("parsing last_attempt_at: %w", err)
		}
		at := time.UnixMilli(millis)
		entry.LastAttemptAt = &at
	}
	if raw := data["metadata"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &entry.Metadata); err != nil {
			return retry.Entry{}, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return entry, nil
}
