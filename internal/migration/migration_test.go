package migration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRunIsIdempotent(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	r := NewRunner()
	ctx := context.Background()
	require.NoError(t, r.Run(ctx, db))
	require.NoError(t, r.Run(ctx, db))

	applied, err := r.Applied(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{r.Version()}, applied)

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM ingest_sessions`))
	assert.Zero(t, n)
}
