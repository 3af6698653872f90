package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/propfolio/vacate/model"
)

// MemoryStore is an in-memory Store for testing and single-node development.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]model.Checkpoint           // key: tenantID/subjectID
	events      map[string][]model.TerminationEvent   // key: tenantID/subjectID
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]model.Checkpoint),
		events:      make(map[string][]model.TerminationEvent),
	}
}

func storeKey(tenantID, subjectID string) string {
	return tenantID + "/" + subjectID
}

// Load retrieves the checkpoint for a subject, scoped to a tenant.
func (s *MemoryStore) Load(_ context.Context, tenantID, subjectID string) (model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[storeKey(tenantID, subjectID)]
	if !ok {
		return model.Checkpoint{}, model.NewNotFoundError(
			fmt.Sprintf("no checkpoint for subject %q", subjectID),
		)
	}
	return cp.Clone(), nil
}

// Save upserts a checkpoint with optimistic locking.
func (s *MemoryStore) Save(_ context.Context, cp model.Checkpoint) (model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(cp.TenantID, cp.SubjectID)
	now := time.Now().UTC()

	existing, ok := s.checkpoints[key]
	if !ok {
		if cp.Version != 0 {
			return model.Checkpoint{}, model.NewConflictError(
				fmt.Sprintf("checkpoint for subject %q version conflict (expected %d)",
					cp.SubjectID, cp.Version),
			)
		}
		cp.Version = 1
		cp.CreatedAt = now
		cp.UpdatedAt = now
		s.checkpoints[key] = cp.Clone()
		return cp, nil
	}

	if existing.Version != cp.Version {
		return model.Checkpoint{}, model.NewConflictError(
			fmt.Sprintf("checkpoint for subject %q version conflict (expected %d, got %d)",
				cp.SubjectID, existing.Version, cp.Version),
		)
	}

	cp.Version++
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = now
	s.checkpoints[key] = cp.Clone()
	return cp, nil
}

// Delete removes a checkpoint and its events.
func (s *MemoryStore) Delete(_ context.Context, tenantID, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(tenantID, subjectID)
	if _, ok := s.checkpoints[key]; !ok {
		return model.NewNotFoundError(
			fmt.Sprintf("no checkpoint for subject %q", subjectID),
		)
	}
	delete(s.checkpoints, key)
	delete(s.events, key)
	return nil
}

// FindActive returns summaries of active checkpoints for a tenant,
// newest first.
func (s *MemoryStore) FindActive(_ context.Context, tenantID string, filters Filters) ([]model.CheckpointSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.CheckpointSummary
	for _, cp := range s.checkpoints {
		if cp.TenantID != tenantID {
			continue
		}
		if cp.Status != model.CheckpointStatusActive {
			continue
		}
		if filters.StageKey != "" && cp.StageKey != filters.StageKey {
			continue
		}
		result = append(result, model.CheckpointSummary{
			SubjectID: cp.SubjectID,
			StageKey:  cp.StageKey,
			Status:    cp.Status,
			CreatedAt: cp.CreatedAt,
			UpdatedAt: cp.UpdatedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.CheckpointSummary{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// AppendEvent adds an entry to a termination's audit trail.
func (s *MemoryStore) AppendEvent(_ context.Context, event model.TerminationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(event.TenantID, event.SubjectID)
	s.events[key] = append(s.events[key], event)
	return nil
}

// GetEvents retrieves the audit trail for a subject in timestamp order.
func (s *MemoryStore) GetEvents(_ context.Context, tenantID, subjectID string) ([]model.TerminationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[storeKey(tenantID, subjectID)]
	result := make([]model.TerminationEvent, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Len returns the total number of stored checkpoints. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checkpoints)
}

// HealthCheck reports the store as healthy; the in-memory store has no
// external dependency to probe.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}
