package termination

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propfolio/vacate/model"
)

// IdempotencyStore deduplicates submit requests. The key format is
// "submit:{tenantId}:{subjectId}:{key}".
type IdempotencyStore interface {
	// Check looks up a previous result by key. If the key exists and the
	// request hash matches, it returns the cached descriptor. If the key
	// exists but the hash differs, it returns a 409 conflict error.
	Check(ctx context.Context, key string, requestHash string) (desc *model.TerminationDescriptor, found bool, err error)

	// Store saves a submit result keyed by the idempotency key with a TTL.
	Store(ctx context.Context, key string, requestHash string, desc model.TerminationDescriptor, ttl time.Duration) error
}

// idempotencyEntry is the stored value for an idempotency key.
type idempotencyEntry struct {
	RequestHash string                      `json:"request_hash"`
	Descriptor  model.TerminationDescriptor `json:"descriptor"`
}

// FormatSubmitKey builds the standard submit deduplication key.
func FormatSubmitKey(tenantID, subjectID, key string) string {
	return fmt.Sprintf("submit:%s:%s:%s", tenantID, subjectID, key)
}

// hashSubmitRequest fingerprints what a submit request targets, so a reused
// idempotency key pointing at a different subject is rejected as a conflict.
func hashSubmitRequest(tenantID, subjectID string) string {
	data, _ := json.Marshal([2]string{tenantID, subjectID})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// --- MemoryIdempotencyStore ---

// MemoryIdempotencyStore is an in-memory IdempotencyStore with TTL support.
// Suitable for testing and single-instance deployments.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*memIdemEntry
}

type memIdemEntry struct {
	data      idempotencyEntry
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates a new in-memory idempotency store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*memIdemEntry),
	}
}

// Check looks up a cached descriptor. Returns conflict error if the request
// hash differs.
func (s *MemoryIdempotencyStore) Check(_ context.Context, key string, requestHash string) (*model.TerminationDescriptor, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if entry.data.RequestHash != requestHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used for a different subject", key),
		)
	}

	desc := entry.data.Descriptor
	return &desc, true, nil
}

// Store saves a descriptor with TTL.
func (s *MemoryIdempotencyStore) Store(_ context.Context, key string, requestHash string, desc model.TerminationDescriptor, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memIdemEntry{
		data: idempotencyEntry{
			RequestHash: requestHash,
			Descriptor:  desc,
		},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisIdempotencyStore ---

// RedisIdempotencyStore is a Redis-backed IdempotencyStore with TTL.
type RedisIdempotencyStore struct {
	client redis.Cmdable
}

// NewRedisIdempotencyStore creates a new Redis-backed idempotency store.
func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Check looks up a cached descriptor in Redis. Returns conflict error if the
// request hash differs.
func (s *RedisIdempotencyStore) Check(ctx context.Context, key string, requestHash string) (*model.TerminationDescriptor, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency entry %q: %w", key, err)
	}

	if entry.RequestHash != requestHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used for a different subject", key),
		)
	}

	return &entry.Descriptor, true, nil
}

// Store saves a descriptor in Redis with TTL.
func (s *RedisIdempotencyStore) Store(ctx context.Context, key string, requestHash string, desc model.TerminationDescriptor, ttl time.Duration) error {
	entry := idempotencyEntry{
		RequestHash: requestHash,
		Descriptor:  desc,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
