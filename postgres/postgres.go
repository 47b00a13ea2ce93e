package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/travco-dmc/backoffice-messaging/api"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings the DB to ensure the connection
// is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// EnsureSchema creates the users and records tables when they do not exist
// yet.
func (pg *Postgres) EnsureSchema(ctx context.Context) error {
	for _, model := range []any{(*user)(nil), (*record)(nil)} {
		if _, err := pg.bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// GetUser returns the account with the given username.
func (pg *Postgres) GetUser(ctx context.Context, username string) (api.User, error) {
	var u user
	err := pg.bun.NewSelect().Model(&u).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.User{}, api.ErrNotFound
	}
	if err != nil {
		return api.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.APIUser(), nil
}

// UpsertUser creates or replaces an account. Used by the server bootstrap.
func (pg *Postgres) UpsertUser(ctx context.Context, u api.User) error {
	model := &user{
		Username:     u.Username,
		Name:         u.Name,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
	}
	_, err := pg.bun.NewInsert().
		Model(model).
		On("CONFLICT (username) DO UPDATE").
		Set("name = EXCLUDED.name, role = EXCLUDED.role, password_hash = EXCLUDED.password_hash").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// ListRecords returns every record body in the named collection, oldest
// first.
func (pg *Postgres) ListRecords(ctx context.Context, resource string) ([]json.RawMessage, error) {
	var recs []record
	err := pg.bun.NewSelect().
		Model(&recs).
		Where("resource = ?", resource).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]json.RawMessage, len(recs))
	for i, r := range recs {
		out[i] = r.Body
	}
	return out, nil
}

// InsertRecord stores a new record and returns the body as persisted. An
// empty or missing id gets a server-assigned one; client-supplied ids (for
// example from an offline fallback being re-synced) are kept.
func (pg *Postgres) InsertRecord(ctx context.Context, resource string, body json.RawMessage) (json.RawMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
		fields["id"] = id
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	rec := &record{ID: id, Resource: resource, Body: b}
	if _, err := pg.bun.NewInsert().Model(rec).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return b, nil
}

// UpdateRecord merges a partial patch into the record body. A missing record
// reports false with no error.
func (pg *Postgres) UpdateRecord(ctx context.Context, resource, id string, patch json.RawMessage) (bool, error) {
	var rec record
	err := pg.bun.NewSelect().
		Model(&rec).
		Where("resource = ?", resource).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan: %w", err)
	}

	var fields, patchFields map[string]any
	if err := json.Unmarshal(rec.Body, &fields); err != nil {
		return false, fmt.Errorf("decode body: %w", err)
	}
	if err := json.Unmarshal(patch, &patchFields); err != nil {
		return false, fmt.Errorf("decode patch: %w", err)
	}
	// The id is immutable once assigned.
	delete(patchFields, "id")
	for k, v := range patchFields {
		fields[k] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("encode body: %w", err)
	}

	_, err = pg.bun.NewUpdate().
		Model((*record)(nil)).
		Set("body = ?", string(b)).
		Where("resource = ?", resource).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	return true, nil
}

// MarkAllMessagesRead flips the read flag on every message addressed to
// username and returns how many rows changed.
func (pg *Postgres) MarkAllMessagesRead(ctx context.Context, username string) (int64, error) {
	res, err := pg.bun.NewUpdate().
		Model((*record)(nil)).
		Set("body = jsonb_set(body, '{read}', 'true'::jsonb)").
		Where("resource = ?", "messages").
		Where("body->>'receiver' = ?", username).
		Where("body->>'read' IS DISTINCT FROM 'true'").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
