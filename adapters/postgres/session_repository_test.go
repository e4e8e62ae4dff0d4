package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/internal/migration"
	"stacingest/ports"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.NewRunner().Run(context.Background(), db))
	return db
}

func sampleRecord(at time.Time) *ports.SessionRecord {
	return &ports.SessionRecord{
		ID:            core.NewSessionID(),
		Owner:         "alice",
		IngestionType: ingest.Dataset,
		Document: ingest.Document{
			"collection":      "no2-monthly",
			"stac_extensions": []any{"https://stac-extensions.github.io/datacube/v2.2.0/schema.json"},
			"cube:dimensions": map[string]any{"x": map[string]any{"type": "spatial"}},
		},
		Summaries: map[string]any{"cloud_cover": map[string]any{"minimum": 0.0, "maximum": 100.0}},
		Extensions: []ports.ExtensionRecord{{
			URL:    "https://stac-extensions.github.io/datacube/v2.2.0/schema.json",
			Title:  "Datacube",
			Fields: []ports.ExtensionFieldRecord{{Name: "cube:dimensions", Required: true}},
		}},
		Strict:    true,
		State:     "idle",
		UpdatedAt: core.NewTimestamp(at),
	}
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	rec := sampleRecord(time.UnixMilli(1_700_000_000_000))
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, ingest.Dataset, got.IngestionType)
	assert.True(t, ingest.Equal(rec.Document, got.Document))
	assert.Equal(t, rec.Summaries, got.Summaries)
	assert.Equal(t, rec.Extensions, got.Extensions)
	assert.True(t, got.Strict)
	assert.Nil(t, got.Edit)
	assert.Equal(t, int64(1_700_000_000_000), got.UpdatedAt.UnixMilli())
}

func TestSessionRepositoryUpsert(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	rec := sampleRecord(time.UnixMilli(1000))
	require.NoError(t, repo.Save(ctx, rec))

	rec.Document = ingest.Document{"collection": "renamed"}
	rec.Edit = &ports.EditTarget{Ref: "feat/x", FileSHA: "abc", FilePath: "p.json"}
	rec.State = "commentCapture"
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Document["collection"])
	require.NotNil(t, got.Edit)
	assert.Equal(t, *rec.Edit, *got.Edit)
	assert.Equal(t, "commentCapture", got.State)

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSessionRepositoryNotFound(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()
	id := core.NewSessionID()

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	err = repo.Delete(ctx, id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestSessionRepositoryListAndDelete(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	older := sampleRecord(time.UnixMilli(1000))
	newer := sampleRecord(time.UnixMilli(2000))
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	list, err = repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, newer.ID, list[0].ID)

	require.NoError(t, repo.Delete(ctx, newer.ID))
	_, err = repo.Get(ctx, newer.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
