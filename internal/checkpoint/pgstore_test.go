package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/propfolio/vacate/model"
)

func TestPgStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)

	store := NewPgStore(pool)

	t.Run("Save and Load", func(t *testing.T) {
		cp := model.Checkpoint{
			SubjectID: "lease-101",
			TenantID:  "tenant-1",
			StageKey:  "details",
			State: model.TerminationState{
				SubjectID: "lease-101",
				Reason:    "lease_end",
				Notes:     "tenant gave notice",
			},
			Status: model.CheckpointStatusActive,
		}

		saved, err := store.Save(ctx, cp)
		require.NoError(t, err)
		assert.Equal(t, 1, saved.Version)

		got, err := store.Load(ctx, "tenant-1", "lease-101")
		require.NoError(t, err)
		assert.Equal(t, "details", got.StageKey)
		assert.Equal(t, "lease_end", got.State.Reason)
		assert.Equal(t, "tenant gave notice", got.State.Notes)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("Save update increments version", func(t *testing.T) {
		got, err := store.Load(ctx, "tenant-1", "lease-101")
		require.NoError(t, err)

		got.StageKey = "media"
		got.State.Media = []model.MediaAsset{
			{URL: "https://cdn.example/walkthrough-1.jpg", Kind: model.MediaKindPhoto},
		}
		updated, err := store.Save(ctx, got)
		require.NoError(t, err)
		assert.Equal(t, got.Version+1, updated.Version)

		reloaded, err := store.Load(ctx, "tenant-1", "lease-101")
		require.NoError(t, err)
		assert.Equal(t, "media", reloaded.StageKey)
		require.Len(t, reloaded.State.Media, 1)
		assert.Equal(t, model.MediaKindPhoto, reloaded.State.Media[0].Kind)
	})

	t.Run("Save stale version conflicts", func(t *testing.T) {
		got, err := store.Load(ctx, "tenant-1", "lease-101")
		require.NoError(t, err)

		stale := got
		stale.Version = got.Version - 1
		_, err = store.Save(ctx, stale)
		require.Error(t, err)
		assert.Equal(t, model.ErrConflict, model.ErrorCode(err))
	})

	t.Run("Save duplicate create conflicts", func(t *testing.T) {
		cp := model.Checkpoint{
			SubjectID: "lease-101",
			TenantID:  "tenant-1",
			StageKey:  "details",
			Status:    model.CheckpointStatusActive,
		}
		_, err := store.Save(ctx, cp)
		require.Error(t, err)
		assert.Equal(t, model.ErrConflict, model.ErrorCode(err))
	})

	t.Run("Load not found", func(t *testing.T) {
		_, err := store.Load(ctx, "tenant-1", "lease-missing")
		require.Error(t, err)
		assert.Equal(t, model.ErrNotFound, model.ErrorCode(err))
	})

	t.Run("Load tenant isolation", func(t *testing.T) {
		_, err := store.Load(ctx, "tenant-2", "lease-101")
		require.Error(t, err)
		assert.Equal(t, model.ErrNotFound, model.ErrorCode(err))
	})

	t.Run("FindActive", func(t *testing.T) {
		_, err := store.Save(ctx, model.Checkpoint{
			SubjectID: "lease-102", TenantID: "tenant-1", StageKey: "damages",
			Status: model.CheckpointStatusActive,
		})
		require.NoError(t, err)

		abandoned, err := store.Save(ctx, model.Checkpoint{
			SubjectID: "lease-103", TenantID: "tenant-1", StageKey: "details",
			Status: model.CheckpointStatusActive,
		})
		require.NoError(t, err)
		abandoned.Status = model.CheckpointStatusAbandoned
		_, err = store.Save(ctx, abandoned)
		require.NoError(t, err)

		result, err := store.FindActive(ctx, "tenant-1", Filters{})
		require.NoError(t, err)
		require.Len(t, result, 2)
		// Newest update first.
		assert.Equal(t, "lease-102", result[0].SubjectID)

		filtered, err := store.FindActive(ctx, "tenant-1", Filters{StageKey: "damages"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "lease-102", filtered[0].SubjectID)

		limited, err := store.FindActive(ctx, "tenant-1", Filters{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "lease-101", limited[0].SubjectID)
	})

	t.Run("Events", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		first := model.TerminationEvent{
			ID: uuid.NewString(), SubjectID: "lease-101", TenantID: "tenant-1",
			StageKey: "details", Event: "stage_saved", ActorID: "user-alice",
			Data:      map[string]any{"reason": "lease_end"},
			Timestamp: now,
		}
		second := model.TerminationEvent{
			ID: uuid.NewString(), SubjectID: "lease-101", TenantID: "tenant-1",
			StageKey: "media", Event: "advanced", ActorID: "user-alice",
			Timestamp: now.Add(time.Second),
		}
		require.NoError(t, store.AppendEvent(ctx, first))
		require.NoError(t, store.AppendEvent(ctx, second))

		events, err := store.GetEvents(ctx, "tenant-1", "lease-101")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "stage_saved", events[0].Event)
		assert.Equal(t, "lease_end", events[0].Data["reason"])
		assert.Equal(t, "advanced", events[1].Event)

		other, err := store.GetEvents(ctx, "tenant-2", "lease-101")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "tenant-1", "lease-101"))

		_, err := store.Load(ctx, "tenant-1", "lease-101")
		assert.Equal(t, model.ErrNotFound, model.ErrorCode(err))

		events, err := store.GetEvents(ctx, "tenant-1", "lease-101")
		require.NoError(t, err)
		assert.Empty(t, events)

		err = store.Delete(ctx, "tenant-1", "lease-101")
		assert.Equal(t, model.ErrNotFound, model.ErrorCode(err))
	})

	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
