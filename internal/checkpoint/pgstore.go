package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propfolio/vacate/model"
)

// Schema holds the DDL for the checkpoint tables. Applied by deployment
// tooling; tests apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS termination_checkpoints (
	tenant_id  TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	stage_key  TEXT NOT NULL,
	state      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	version    INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, subject_id)
);

CREATE TABLE IF NOT EXISTS termination_events (
	id         UUID PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	stage_key  TEXT NOT NULL,
	event      TEXT NOT NULL,
	actor_id   TEXT NOT NULL,
	data       JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS termination_events_subject_idx
	ON termination_events (tenant_id, subject_id, created_at);
`

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL checkpoint store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Load retrieves the checkpoint for a subject, scoped to a tenant.
func (s *PgStore) Load(ctx context.Context, tenantID, subjectID string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	var stateJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, subject_id, stage_key, state, status, version, created_at, updated_at
		FROM termination_checkpoints
		WHERE tenant_id = $1 AND subject_id = $2`,
		tenantID, subjectID,
	).Scan(
		&cp.TenantID, &cp.SubjectID, &cp.StageKey, &stateJSON,
		&cp.Status, &cp.Version, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Checkpoint{}, model.NewNotFoundError(
			fmt.Sprintf("no checkpoint for subject %q", subjectID),
		)
	}
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("query checkpoint: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return model.Checkpoint{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return cp, nil
}

// Save upserts a checkpoint with optimistic locking. Version 0 inserts a new
// row; any other version must match the stored row to update it.
func (s *PgStore) Save(ctx context.Context, cp model.Checkpoint) (model.Checkpoint, error) {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("marshal state: %w", err)
	}

	now := time.Now().UTC()

	if cp.Version == 0 {
		cp.Version = 1
		cp.CreatedAt = now
		cp.UpdatedAt = now
		_, err := s.pool.Exec(ctx, `
			INSERT INTO termination_checkpoints (
				tenant_id, subject_id, stage_key, state, status, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			cp.TenantID, cp.SubjectID, cp.StageKey, stateJSON, cp.Status,
			cp.Version, cp.CreatedAt, cp.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return model.Checkpoint{}, model.NewConflictError(
					fmt.Sprintf("checkpoint for subject %q already exists", cp.SubjectID),
				)
			}
			return model.Checkpoint{}, fmt.Errorf("insert checkpoint: %w", err)
		}
		return cp, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE termination_checkpoints SET
			stage_key = $1,
			state = $2,
			status = $3,
			version = $4,
			updated_at = $5
		WHERE tenant_id = $6 AND subject_id = $7 AND version = $8`,
		cp.StageKey, stateJSON, cp.Status, cp.Version+1, now,
		cp.TenantID, cp.SubjectID, cp.Version,
	)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("update checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Checkpoint{}, model.NewConflictError(
			fmt.Sprintf("checkpoint for subject %q version conflict (expected %d)", cp.SubjectID, cp.Version),
		)
	}
	cp.Version++
	cp.UpdatedAt = now
	return cp, nil
}

// Delete removes a checkpoint and its events.
func (s *PgStore) Delete(ctx context.Context, tenantID, subjectID string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM termination_events
		WHERE tenant_id = $1 AND subject_id = $2`,
		tenantID, subjectID,
	); err != nil {
		return fmt.Errorf("delete termination events: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM termination_checkpoints
		WHERE tenant_id = $1 AND subject_id = $2`,
		tenantID, subjectID,
	)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("no checkpoint for subject %q", subjectID),
		)
	}
	return nil
}

// FindActive returns summaries of active checkpoints for a tenant,
// newest first.
func (s *PgStore) FindActive(ctx context.Context, tenantID string, filters Filters) ([]model.CheckpointSummary, error) {
	query := `SELECT subject_id, stage_key, status, created_at, updated_at
	          FROM termination_checkpoints
	          WHERE tenant_id = $1 AND status = 'active'`
	args := []any{tenantID}
	argIdx := 2

	if filters.StageKey != "" {
		query += fmt.Sprintf(" AND stage_key = $%d", argIdx)
		args = append(args, filters.StageKey)
		argIdx++
	}

	query += " ORDER BY updated_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var result []model.CheckpointSummary
	for rows.Next() {
		var sum model.CheckpointSummary
		if err := rows.Scan(&sum.SubjectID, &sum.StageKey, &sum.Status, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint summary: %w", err)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// AppendEvent adds an entry to a termination's audit trail.
func (s *PgStore) AppendEvent(ctx context.Context, event model.TerminationEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO termination_events (
			id, tenant_id, subject_id, stage_key, event, actor_id, data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.TenantID, event.SubjectID, event.StageKey,
		event.Event, event.ActorID, dataJSON, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert termination event: %w", err)
	}
	return nil
}

// GetEvents retrieves the audit trail for a subject in timestamp order.
func (s *PgStore) GetEvents(ctx context.Context, tenantID, subjectID string) ([]model.TerminationEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, subject_id, stage_key, event, actor_id, data, created_at
		FROM termination_events
		WHERE tenant_id = $1 AND subject_id = $2
		ORDER BY created_at ASC`,
		tenantID, subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query termination events: %w", err)
	}
	defer rows.Close()

	var events []model.TerminationEvent
	for rows.Next() {
		var evt model.TerminationEvent
		var dataJSON []byte
		if err := rows.Scan(
			&evt.ID, &evt.TenantID, &evt.SubjectID, &evt.StageKey,
			&evt.Event, &evt.ActorID, &dataJSON, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan termination event: %w", err)
		}
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &evt.Data)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a unique-constraint violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
