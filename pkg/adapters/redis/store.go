package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/strand/pkg/domain"
)

// farFuture is the index score of threads without expiration (2100-01-01).
const farFuture = 4102444800

// appendScript appends a checkpoint only if its step is greater than the thread's latest.
//
// KEYS[1] checkpoint list, KEYS[2] meta hash, KEYS[3] thread index
// ARGV[1] payload, ARGV[2] step, ARGV[3] id field, ARGV[4] ttl ms, ARGV[5] index score, ARGV[6] thread id
var appendScript = backend.NewScript(`
local last = redis.call("HGET", KEYS[2], "step")
if last and tonumber(last) >= tonumber(ARGV[2]) then
	return 0
end
local n = redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], "step", ARGV[2], ARGV[3], n - 1)
if tonumber(ARGV[4]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
	redis.call("PEXPIRE", KEYS[2], ARGV[4])
end
redis.call("ZADD", KEYS[3], ARGV[5], ARGV[6])
return 1
`)

// Store implements ports.CheckpointStore using Redis.
// Each thread is a list of JSON checkpoints plus a meta hash holding the latest
// step and the position of every checkpoint id. A sorted set indexes threads.
type Store struct {
	client   *backend.Client
	prefix   string
	ttl      time.Duration
	pageSize int64
}

type Option func(*Store)

// WithTTL sets the expiration for threads. It is refreshed on every Put.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for threads.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithPageSize sets how many checkpoints History fetches per round trip.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = int64(n)
		}
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client:   client,
		prefix:   "strand:",
		ttl:      0, // No expiration by default
		pageSize: 32,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) listKey(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *Store) metaKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":meta"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Put appends the checkpoint atomically.
func (s *Store) Put(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Score = Now + TTL. If TTL = 0, the thread never leaves the index.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	ok, err := appendScript.Run(ctx, s.client,
		[]string{s.listKey(cp.ThreadID), s.metaKey(cp.ThreadID), s.indexKey()},
		data, cp.Step, "id:"+cp.ID, s.ttl.Milliseconds(), score, cp.ThreadID,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if ok == 0 {
		return domain.ErrStepConflict
	}
	return nil
}

func decode(raw string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Latest returns the last element of the thread list.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	val, err := s.client.LIndex(ctx, s.listKey(threadID), -1).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

// Get resolves the checkpoint position through the meta hash.
func (s *Store) Get(ctx context.Context, threadID, checkpointID string) (*domain.Checkpoint, error) {
	pos, err := s.client.HGet(ctx, s.metaKey(threadID), "id:"+checkpointID).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	idx, err := strconv.ParseInt(pos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint index for %q: %w", checkpointID, err)
	}

	val, err := s.client.LIndex(ctx, s.listKey(threadID), idx).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

// History pages through the thread list from the tail.
func (s *Store) History(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error] {
	return func(yield func(*domain.Checkpoint, error) bool) {
		key := s.listKey(threadID)
		n, err := s.client.LLen(ctx, key).Result()
		if err != nil {
			yield(nil, fmt.Errorf("failed to read history length: %w", err))
			return
		}

		for end := n - 1; end >= 0; end -= s.pageSize {
			start := max(end-s.pageSize+1, 0)
			page, err := s.client.LRange(ctx, key, start, end).Result()
			if err != nil {
				yield(nil, fmt.Errorf("failed to read history page: %w", err))
				return
			}
			for i := len(page) - 1; i >= 0; i-- {
				cp, err := decode(page[i])
				if !yield(cp, err) || err != nil {
					return
				}
			}
		}
	}
}

// Delete removes the thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.listKey(threadID), s.metaKey(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns active threads from the index, pruning expired entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	return threads, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
