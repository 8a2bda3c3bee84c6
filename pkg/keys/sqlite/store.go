// Package sqlite implements the durable client key pair store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/duydn-dev/identityserver/pkg/keys"
)

// Store implements keys.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ keys.Store = (*Store)(nil)

// Open opens (creating if needed) the key pair database at path and
// applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// modernc sqlite serializes access; a single connection avoids
	// SQLITE_BUSY between the paired reads and writes in Rotate.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// keyPairColumns is the SELECT column list shared by all queries.
const keyPairColumns = `id, client_id, private_key, public_key, key_size,
	created_at, expires_at, is_active, description`

// Rotate deactivates any active pairs for the client and inserts the new
// pair in one transaction. Returns the previously active pair, if any.
func (s *Store) Rotate(ctx context.Context, pair *keys.ClientKeyPair) (*keys.ClientKeyPair, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	prev, err := scanKeyPair(tx.QueryRowContext(ctx,
		`SELECT `+keyPairColumns+` FROM client_key_pairs
		 WHERE client_id = ? AND is_active = 1
		 ORDER BY created_at DESC LIMIT 1`,
		pair.ClientID,
	))
	if errors.Is(err, keys.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE client_key_pairs SET is_active = 0 WHERE client_id = ? AND is_active = 1`,
		pair.ClientID,
	); err != nil {
		return nil, fmt.Errorf("deactivating previous keys: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO client_key_pairs (
			id, client_id, private_key, public_key, key_size,
			created_at, expires_at, is_active, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pair.ID,
		pair.ClientID,
		pair.PrivateKey,
		pair.PublicKey,
		pair.KeySize,
		formatTime(pair.CreatedAt),
		formatNullableTime(pair.ExpiresAt),
		boolToInt(pair.IsActive),
		pair.Description,
	); err != nil {
		return nil, fmt.Errorf("inserting key pair: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return prev, nil
}

// GetActiveByClientID returns the active pair for a client.
func (s *Store) GetActiveByClientID(ctx context.Context, clientID string) (*keys.ClientKeyPair, error) {
	return scanKeyPair(s.db.QueryRowContext(ctx,
		`SELECT `+keyPairColumns+` FROM client_key_pairs
		 WHERE client_id = ? AND is_active = 1
		 ORDER BY created_at DESC LIMIT 1`,
		clientID,
	))
}

// GetActiveByPublicKey returns the active pair matching the public key
// material exactly.
func (s *Store) GetActiveByPublicKey(ctx context.Context, publicKey string) (*keys.ClientKeyPair, error) {
	return scanKeyPair(s.db.QueryRowContext(ctx,
		`SELECT `+keyPairColumns+` FROM client_key_pairs
		 WHERE public_key = ? AND is_active = 1
		 ORDER BY created_at DESC LIMIT 1`,
		publicKey,
	))
}

// GetByClientID returns the newest pair for a client in any state.
func (s *Store) GetByClientID(ctx context.Context, clientID string) (*keys.ClientKeyPair, error) {
	return scanKeyPair(s.db.QueryRowContext(ctx,
		`SELECT `+keyPairColumns+` FROM client_key_pairs
		 WHERE client_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		clientID,
	))
}

// Deactivate marks every pair for the client inactive and returns the
// newest record, or keys.ErrNotFound if the client has none.
func (s *Store) Deactivate(ctx context.Context, clientID string) (*keys.ClientKeyPair, error) {
	pair, err := s.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE client_key_pairs SET is_active = 0 WHERE client_id = ?`,
		clientID,
	); err != nil {
		return nil, fmt.Errorf("deactivating key pairs: %w", err)
	}

	pair.IsActive = false
	return pair, nil
}

// Delete removes all pairs for the client, history included.
func (s *Store) Delete(ctx context.Context, clientID string) (*keys.ClientKeyPair, error) {
	pair, err := s.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_key_pairs WHERE client_id = ?`,
		clientID,
	); err != nil {
		return nil, fmt.Errorf("deleting key pairs: %w", err)
	}

	return pair, nil
}

// List returns all pairs ordered by creation time descending.
func (s *Store) List(ctx context.Context) ([]*keys.ClientKeyPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyPairColumns+` FROM client_key_pairs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying key pairs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*keys.ClientKeyPair
	for rows.Next() {
		pair, scanErr := scanKeyPair(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating key pair rows: %w", err)
	}

	return result, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

func scanKeyPair(sc scanner) (*keys.ClientKeyPair, error) {
	var (
		pair         keys.ClientKeyPair
		createdAtStr string
		expiresAtStr sql.NullString
		isActive     int
	)

	err := sc.Scan(
		&pair.ID, &pair.ClientID, &pair.PrivateKey, &pair.PublicKey,
		&pair.KeySize, &createdAtStr, &expiresAtStr, &isActive, &pair.Description,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keys.ErrNotFound
		}
		return nil, fmt.Errorf("scanning key pair row: %w", err)
	}

	pair.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if expiresAtStr.Valid {
		expiresAt, parseErr := time.Parse(time.RFC3339Nano, expiresAtStr.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", parseErr)
		}
		pair.ExpiresAt = &expiresAt
	}
	pair.IsActive = isActive != 0

	return &pair, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
