package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-pipeline/idempotency"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of idempotency.Store
 * Entries live in hashes, locks in plain keys with PX expiry. Lock
 * acquisition and the processing-entry write run inside a single Lua script,
 * so the pair is atomic on the Redis side.
 */

const (
	entryPrefix = "idem:entry" // Hash naming: idem:entry:{key}
	lockPrefix  = "idem:lock"  // Lock naming: idem:lock:{key}
)

// acquireScript takes the lock and writes the processing entry atomically.
// KEYS[1] = lock key, KEYS[2] = entry key
// ARGV[1] = lock TTL millis, ARGV[2] = now unix millis, ARGV[3] = lock-until unix millis
var acquireScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[3], 'NX', 'PX', ARGV[1]) == false then
  return false
end
local created = redis.call('HGET', KEYS[2], 'created_at')
if created == false then
  created = ARGV[2]
end
local attempts = redis.call('HINCRBY', KEYS[2], 'attempts', 1)
redis.call('HSET', KEYS[2],
  'key', KEYS[2],
  'status', 'processing',
  'created_at', created,
  'lock_until', ARGV[3],
  'completed_at', '')
return {created, attempts}
`)

type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed idempotency store
func NewStore(addr, password string, db int) (*Store, error) {
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

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client, sharing its connection pool
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the entry for key and whether one exists
func (s *Store) Get(ctx context.Context, key string) (idempotency.Entry, bool, error) {
	data, err := s.client.HGetAll(ctx, entryKey(key)).Result()
	if err != nil {
		return idempotency.Entry{}, false, fmt.Errorf("getting idempotency entry: %w", err)
	}
	if len(data) == 0 {
		return idempotency.Entry{}, false, nil
	}

	entry, err := parseEntry(key, data)
	if err != nil {
		return idempotency.Entry{}, false, fmt.Errorf("parsing idempotency entry: %w", err)
	}
	return entry, true, nil
}

// Acquire atomically takes the processing lock and writes the entry in
// processing state via a Lua script.
func (s *Store) Acquire(ctx context.Context, key string, lockTTL time.Duration) (idempotency.Entry, bool, error) {
	now := time.Now()
	lockUntil := now.Add(lockTTL)

	result, err := acquireScript.Run(ctx, s.client,
		[]string{lockKey(key), entryKey(key)},
		lockTTL.Milliseconds(),
		now.UnixMilli(),
		lockUntil.UnixMilli(),
	).Result()
	if err == redis.Nil {
		// script returned false: lock held by another owner
		return idempotency.Entry{}, false, nil
	}
	if err != nil {
		return idempotency.Entry{}, false, fmt.Errorf("acquiring idempotency lock: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return idempotency.Entry{}, false, fmt.Errorf("unexpected acquire script reply: %v", result)
	}

	createdAt, err := parseUnixMilliReply(values[0])
	if err != nil {
		return idempotency.Entry{}, false, fmt.Errorf("parsing created_at: %w", err)
	}
	attempts, ok := values[1].(int64)
	if !ok {
		return idempotency.Entry{}, false, fmt.Errorf("unexpected attempts reply: %v", values[1])
	}

	return idempotency.Entry{
		Key:       key,
		Status:    idempotency.Processing,
		CreatedAt: createdAt,
		Attempts:  int(attempts),
		LockUntil: &lockUntil,
	}, true, nil
}

// Complete marks the entry completed and releases the lock
func (s *Store) Complete(ctx context.Context, key string, response []byte) error {
	return s.finish(ctx, key, idempotency.Completed, response, "")
}

// Fail marks the entry failed and releases the lock
func (s *Store) Fail(ctx context.Context, key string, cause string) error {
	return s.finish(ctx, key, idempotency.Failed, nil, cause)
}

func (s *Store) finish(ctx context.Context, key string, status idempotency.Status, response []byte, cause string) error {
	now := time.Now()

	fields := map[string]interface{}{
		"status":       status.String(),
		"completed_at": now.UnixMilli(),
		"lock_until":   "",
		"last_error":   cause,
	}
	if response != nil {
		fields["response"] = response
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, entryKey(key), fields)
	pipe.HSetNX(ctx, entryKey(key), "created_at", now.UnixMilli())
	pipe.Del(ctx, lockKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finishing idempotency entry: %w", err)
	}
	return nil
}

// Delete removes the entry and its lock
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, entryKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting idempotency entry: %w", err)
	}
	return nil
}

// Cleanup scans entry hashes and removes those older than maxAge
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	removed := 0

	iter := s.client.Scan(ctx, 0, entryPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		hashKey := iter.Val()

		createdAt, err := s.client.HGet(ctx, hashKey, "created_at").Int64()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("reading created_at: %w", err)
		}

		if createdAt < cutoff {
			key := hashKey[len(entryPrefix)+1:]
			if err := s.client.Del(ctx, hashKey, lockKey(key)).Err(); err != nil {
				return removed, fmt.Errorf("deleting expired entry: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scanning idempotency entries: %w", err)
	}
	return removed, nil
}

// Close releases the Redis connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

func entryKey(key string) string {
	return fmt.Sprintf("%s:%s", entryPrefix, key)
}

func lockKey(key string) string {
	return fmt.Sprintf("%s:%s", lockPrefix, key)
}

func parseEntry(key string, data map[string]string) (idempotency.Entry, error) {
	entry := idempotency.Entry{
		Key:    key,
		Status: idempotency.NewStatus(data["status"]),
	}

	if raw, ok := data["created_at"]; ok && raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return idempotency.Entry{}, fmt.Errorf("parsing created_at: %w", err)
		}
		entry.CreatedAt = time.UnixMilli(millis)
	}
	if raw, ok := data["completed_at"]; ok && raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return idempotency.Entry{}, fmt.Errorf("parsing completed_at: %w", err)
		}
		completedAt := time.UnixMilli(millis)
		entry.CompletedAt = &completedAt
	}
	if raw, ok := data["lock_until"]; ok && raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return idempotency.Entry{}, fmt.Errorf("parsing lock_until: %w", err)
		}
		lockUntil := time.UnixMilli(millis)
		entry.LockUntil = &lockUntil
	}
	if raw, ok := data["attempts"]; ok && raw != "" {
		attempts, err := strconv.Atoi(raw)
		if err != nil {
			return idempotency.Entry{}, fmt.Errorf("parsing attempts: %w", err)
		}
		entry.Attempts = attempts
	}
	if raw, ok := data["response"]; ok && raw != "" {
		entry.Response = []byte(raw)
	}
	entry.LastError = data["last_error"]

	return entry, nil
}

func parseUnixMilliReply(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case int64:
		return time.UnixMilli(v), nil
	case string:
		millis, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(millis), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected reply type %T", value)
	}
}
