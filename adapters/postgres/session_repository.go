package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stacingest/domain/core"
	"stacingest/domain/ingest"
	"stacingest/internal/errors"
	"stacingest/ports"
)

// SessionRepositoryImpl implements ports.SessionRepository on sqlx. Queries
// are written with ? placeholders and rebound for the connected driver, so
// the same code serves Postgres and SQLite.
type SessionRepositoryImpl struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) ports.SessionRepository {
	return &SessionRepositoryImpl{db: db}
}

type sessionRow struct {
	ID            string     `db:"id"`
	Owner         string     `db:"owner"`
	IngestionType string     `db:"ingestion_type"`
	Document      jsonColumn `db:"document"`
	Summaries     jsonColumn `db:"summaries"`
	Extensions    jsonColumn `db:"extensions"`
	Strict        bool       `db:"strict"`
	EditTarget    jsonColumn `db:"edit_target"`
	State         string     `db:"state"`
	UpdatedAt     int64      `db:"updated_at"`
}

const sessionColumns = `id, owner, ingestion_type, document, summaries, extensions, strict, edit_target, state, updated_at`

// Save inserts or replaces the snapshot for record.ID
func (r *SessionRepositoryImpl) Save(ctx context.Context, record *ports.SessionRecord) error {
	row, err := toRow(record)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}

	query := r.db.Rebind(`
		INSERT INTO ingest_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner,
			ingestion_type = excluded.ingestion_type,
			document = excluded.document,
			summaries = excluded.summaries,
			extensions = excluded.extensions,
			strict = excluded.strict,
			edit_target = excluded.edit_target,
			state = excluded.state,
			updated_at = excluded.updated_at
	`)
	_, err = r.db.ExecContext(ctx, query,
		row.ID, row.Owner, row.IngestionType, row.Document, row.Summaries,
		row.Extensions, row.Strict, row.EditTarget, row.State, row.UpdatedAt)
	if err != nil {
		return errors.DatabaseError("failed to save session", err)
	}
	return nil
}

// Get retrieves a session snapshot by ID
func (r *SessionRepositoryImpl) Get(ctx context.Context, id core.SessionID) (*ports.SessionRecord, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT `+sessionColumns+`
		FROM ingest_sessions
		WHERE id = ?
	`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w %s", core.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load session", err)
	}
	return fromRow(row)
}

// Delete removes a session snapshot
func (r *SessionRepositoryImpl) Delete(ctx context.Context, id core.SessionID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM ingest_sessions WHERE id = ?`), id.String())
	if err != nil {
		return errors.DatabaseError("failed to delete session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w %s", core.ErrSessionNotFound, id)
	}
	return nil
}

// List returns sessions, most recently updated first, optionally limited
func (r *SessionRepositoryImpl) List(ctx context.Context, limit int) ([]*ports.SessionRecord, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM ingest_sessions
		ORDER BY updated_at DESC, id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, errors.DatabaseError("failed to list sessions", err)
	}

	records := make([]*ports.SessionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func toRow(rec *ports.SessionRecord) (sessionRow, error) {
	row := sessionRow{
		ID:            rec.ID.String(),
		Owner:         rec.Owner,
		IngestionType: rec.IngestionType.String(),
		Strict:        rec.Strict,
		State:         rec.State,
		UpdatedAt:     rec.UpdatedAt.UnixMilli(),
	}
	doc := rec.Document
	if doc == nil {
		doc = ingest.Document{}
	}

	var err error
	if row.Document, err = marshalColumn(doc); err != nil {
		return row, err
	}
	if row.Summaries, err = marshalColumn(rec.Summaries); err != nil {
		return row, err
	}
	if row.Extensions, err = marshalColumn(rec.Extensions); err != nil {
		return row, err
	}
	if rec.Edit != nil {
		if row.EditTarget, err = marshalColumn(rec.Edit); err != nil {
			return row, err
		}
	}
	return row, nil
}

func fromRow(row sessionRow) (*ports.SessionRecord, error) {
	typ, err := ingest.ParseIngestionType(row.IngestionType)
	if err != nil {
		return nil, errors.DatabaseError("stored session has an invalid type", err)
	}
	rec := &ports.SessionRecord{
		ID:            core.SessionID(row.ID),
		Owner:         row.Owner,
		IngestionType: typ,
		Strict:        row.Strict,
		State:         row.State,
		UpdatedAt:     core.FromUnixMilli(row.UpdatedAt),
	}

	if err := row.Document.decode(&rec.Document); err != nil {
		return nil, errors.DatabaseError("failed to decode session document", err)
	}
	if err := row.Summaries.decode(&rec.Summaries); err != nil {
		return nil, errors.DatabaseError("failed to decode session summaries", err)
	}
	if err := row.Extensions.decode(&rec.Extensions); err != nil {
		return nil, errors.DatabaseError("failed to decode session extensions", err)
	}
	if len(row.EditTarget) > 0 && string(row.EditTarget) != "null" {
		rec.Edit = &ports.EditTarget{}
		if err := row.EditTarget.decode(rec.Edit); err != nil {
			return nil, errors.DatabaseError("failed to decode session edit target", err)
		}
	}
	if rec.Document == nil {
		rec.Document = ingest.Document{}
	}
	return rec, nil
}
