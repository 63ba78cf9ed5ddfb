// Package persistence is a minimal Postgres-backed implementation of the
// opaque persistence layer consumed per §6.3: get_capsule, save_capsule,
// get_user, plus the participants relation. Transactions are per-operation
// because status gating ensures only one writer mutates a given capsule at
// a time (§6.3).
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	xerrors "github.com/capsulabs/capsule-pipeline/errors"
	"github.com/capsulabs/capsule-pipeline/model"

	_ "github.com/lib/pq"
)

// User is the minimal user record this domain needs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Store is the persistence interface the pipeline orchestrators and GC
// depend on, kept narrow on purpose per §1's "opaque persistence layer".
type Store interface {
	GetCapsule(ctx context.Context, id int64) (*model.Capsule, error)
	SaveCapsule(ctx context.Context, c *model.Capsule) error
	GetUser(ctx context.Context, id string) (*User, error)
	// ListRunning returns every capsule with at least one task track in
	// TaskStatus Running, for the stale-PID sweep run at worker startup
	// (§3.3, §7).
	ListRunning(ctx context.Context) ([]*model.Capsule, error)
}

// PGStore is the reference Store implementation, following the teacher's
// plain database/sql + lib/pq pattern (no ORM anywhere in the pack).
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func Open(dataSourceName string) (*PGStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	return NewPGStore(db), nil
}

func (s *PGStore) GetCapsule(ctx context.Context, id int64) (*model.Capsule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document FROM capsules WHERE id = $1`, id)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.NewObjectNotFoundError(fmt.Sprint(id), err)
		}
		return nil, xerrors.NewPersistenceError("get_capsule", err)
	}
	var c model.Capsule
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, xerrors.NewPersistenceError("get_capsule", err)
	}
	return &c, nil
}

func (s *PGStore) SaveCapsule(ctx context.Context, c *model.Capsule) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO capsules (id, document) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document`, c.ID, raw)
	if err != nil {
		return xerrors.NewPersistenceError("save_capsule", err)
	}
	return nil
}

// ListRunning scans every capsule document whose produced/published/
// video_uploaded status is "running", a cheap Postgres JSON field-extraction
// (->>) query since the document column already carries the status fields.
func (s *PGStore) ListRunning(ctx context.Context) ([]*model.Capsule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM capsules
		WHERE document->>'produced' = 'running'
		   OR document->>'published' = 'running'
		   OR document->>'video_uploaded' = 'running'`)
	if err != nil {
		return nil, xerrors.NewPersistenceError("list_running", err)
	}
	defer rows.Close()

	var capsules []*model.Capsule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, xerrors.NewPersistenceError("list_running", err)
		}
		var c model.Capsule
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, xerrors.NewPersistenceError("list_running", err)
		}
		capsules = append(capsules, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.NewPersistenceError("list_running", err)
	}
	return capsules, nil
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.NewObjectNotFoundError(id, err)
		}
		return nil, xerrors.NewPersistenceError("get_user", err)
	}
	return &u, nil
}
