package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nutrimama/nutrimama/internal/domain"

	_ "modernc.org/sqlite"
)

const saltKey = "kdf_salt"

// LocalStore keeps profiles in a SQLite file on the user's device. Both
// halves of a profile are sealed before they touch disk.
type LocalStore struct {
	db     *sql.DB
	sealer *Sealer
}

// OpenLocal opens (or creates) the database at path. The salt for key
// derivation is generated on first open and kept in the file.
func OpenLocal(ctx context.Context, path, passphrase string) (*LocalStore, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &LocalStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	salt, err := s.salt(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if s.sealer, err = NewSealer(passphrase, salt); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		belief BLOB NOT NULL,
		memory BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *LocalStore) salt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, saltKey).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	if salt, err = NewSalt(); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, saltKey, salt); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

func (s *LocalStore) Load(ctx context.Context, userID string) (*domain.Profile, error) {
	var belief, memory []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT belief, memory FROM profiles WHERE user_id = ?`, userID,
	).Scan(&belief, &memory)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if belief, err = s.sealer.Open(belief, adFor("belief", userID)); err != nil {
		return nil, err
	}
	if memory, err = s.sealer.Open(memory, adFor("memory", userID)); err != nil {
		return nil, err
	}
	return decodeProfile(belief, memory)
}

// Save writes both halves in one transaction.
func (s *LocalStore) Save(ctx context.Context, p *domain.Profile) error {
	belief, memory, err := encodeProfile(p)
	if err != nil {
		return err
	}
	userID := p.Belief.UserID
	if belief, err = s.sealer.Seal(belief, adFor("belief", userID)); err != nil {
		return err
	}
	if memory, err = s.sealer.Seal(memory, adFor("memory", userID)); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, belief, memory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			belief = excluded.belief,
			memory = excluded.memory,
			updated_at = excluded.updated_at`,
		userID, belief, memory, now, now,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LocalStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM profiles ORDER BY user_id`)
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

// Delete removes a user's profile. Missing users are not an error.
func (s *LocalStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
	return err
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

func adFor(column, userID string) []byte {
	return []byte(column + ":" + userID)
}

var _ domain.ProfileStore = (*LocalStore)(nil)
