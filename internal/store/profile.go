package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nutrimama/nutrimama/internal/domain"
)

const profileSchema = `
CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    TEXT PRIMARY KEY,
	belief     JSONB NOT NULL,
	memory     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_actions (
	id                 UUID PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES user_profiles(user_id) ON DELETE CASCADE,
	action_type        TEXT NOT NULL,
	food               TEXT,
	nutrients_targeted TEXT[] NOT NULL DEFAULT '{}',
	outcome            TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	resolved_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_user_actions_user_id ON user_actions(user_id);
CREATE INDEX IF NOT EXISTS idx_user_actions_food ON user_actions(food);
`

// ProfileStore persists profiles in Postgres. The JSONB columns are the
// source of truth; user_actions mirrors the action log for reporting.
type ProfileStore struct {
	db *pgxpool.Pool
}

func NewProfileStore(db *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *ProfileStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, profileSchema); err != nil {
		return fmt.Errorf("migrate profiles: %w", err)
	}
	return nil
}

func (s *ProfileStore) Load(ctx context.Context, userID string) (*domain.Profile, error) {
	var belief, memory []byte
	err := s.db.QueryRow(ctx,
		`SELECT belief, memory FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&belief, &memory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeProfile(belief, memory)
}

// Save upserts the profile and its action mirror in one transaction.
func (s *ProfileStore) Save(ctx context.Context, p *domain.Profile) error {
	belief, memory, err := encodeProfile(p)
	if err != nil {
		return err
	}
	userID := p.Belief.UserID

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO user_profiles (user_id, belief, memory)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
			belief = EXCLUDED.belief,
			memory = EXCLUDED.memory,
			updated_at = now()`,
		userID, belief, memory,
	)
	if err != nil {
		return err
	}

	if len(p.Memory.Actions) > 0 {
		batch := &pgx.Batch{}
		for _, a := range p.Memory.Actions {
			nutrients := make([]string, len(a.NutrientsTargeted))
			for i, n := range a.NutrientsTargeted {
				nutrients[i] = string(n)
			}
			batch.Queue(
				`INSERT INTO user_actions (id, user_id, action_type, food, nutrients_targeted, outcome, created_at, resolved_at)
				 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
				 ON CONFLICT (id) DO UPDATE SET
					outcome = EXCLUDED.outcome,
					resolved_at = EXCLUDED.resolved_at`,
				a.ID, userID, string(a.ActionType), string(a.Food), nutrients,
				string(a.Outcome), a.Timestamp, a.OutcomeRecordedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("mirror actions: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *ProfileStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ domain.ProfileStore = (*ProfileStore)(nil)
