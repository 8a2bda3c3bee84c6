// Package sqlite implements the persisted grant store adapter on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/duydn-dev/identityserver/pkg/grants"
)

// Store implements grants.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ grants.Store = (*Store)(nil)

// Open opens (creating if needed) the grant database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

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

const grantColumns = `key, type, client_id, subject_id, session_id, creation_time, expiration, data`

// ListGrants returns one page of grants matching the filter, ordered by
// creation time descending, plus the total match count.
func (s *Store) ListGrants(ctx context.Context, f grants.GrantFilter) ([]grants.PersistedGrant, int, error) {
	where := ` WHERE 1=1`
	var args []any

	if f.SubjectID != "" {
		where += ` AND subject_id LIKE '%' || ? || '%'`
		args = append(args, f.SubjectID)
	}
	if f.ClientID != "" {
		where += ` AND client_id LIKE '%' || ? || '%'`
		args = append(args, f.ClientID)
	}
	if f.Type != "" {
		where += ` AND type LIKE '%' || ? || '%'`
		args = append(args, f.Type)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM persisted_grants`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting grants: %w", err)
	}

	page, pageSize := normalizePage(f.Page, f.PageSize)
	query := `SELECT ` + grantColumns + ` FROM persisted_grants` + where +
		` ORDER BY creation_time DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := collectGrants(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListGrantsBySubject returns all grants for the subject, newest first.
func (s *Store) ListGrantsBySubject(ctx context.Context, subjectID string) ([]grants.PersistedGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM persisted_grants
		 WHERE subject_id = ?
		 ORDER BY creation_time DESC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying grants by subject: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectGrants(rows)
}

// RevokeByKey deletes a single grant by primary key.
func (s *Store) RevokeByKey(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM persisted_grants WHERE key = ?`, key,
	)
	if err != nil {
		return false, fmt.Errorf("deleting grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected > 0, nil
}

// RevokeBySubjectAndClient deletes all grants matching both fields
// exactly.
func (s *Store) RevokeBySubjectAndClient(ctx context.Context, subjectID, clientID string) (int, error) {
	return s.deleteCount(ctx,
		`DELETE FROM persisted_grants WHERE subject_id = ? AND client_id = ?`,
		subjectID, clientID,
	)
}

// RevokeBySession deletes every grant sharing the session ID.
func (s *Store) RevokeBySession(ctx context.Context, sessionID string) (int, error) {
	return s.deleteCount(ctx,
		`DELETE FROM persisted_grants WHERE session_id = ?`, sessionID,
	)
}

// RevokeBySubject deletes every grant for the subject.
func (s *Store) RevokeBySubject(ctx context.Context, subjectID string) (int, error) {
	return s.deleteCount(ctx,
		`DELETE FROM persisted_grants WHERE subject_id = ?`, subjectID,
	)
}

// ListDeviceCodes returns one page of device codes matching the filter,
// newest first, plus the total match count.
func (s *Store) ListDeviceCodes(ctx context.Context, f grants.DeviceCodeFilter) ([]grants.DeviceFlowCode, int, error) {
	where := ` WHERE 1=1`
	var args []any

	if f.UserCode != "" {
		where += ` AND user_code LIKE '%' || ? || '%'`
		args = append(args, f.UserCode)
	}
	if f.ClientID != "" {
		where += ` AND client_id LIKE '%' || ? || '%'`
		args = append(args, f.ClientID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM device_flow_codes`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting device codes: %w", err)
	}

	page, pageSize := normalizePage(f.Page, f.PageSize)
	query := `SELECT user_code, device_code, client_id, subject_id, creation_time, expiration
		FROM device_flow_codes` + where + ` ORDER BY creation_time DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying device codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []grants.DeviceFlowCode
	for rows.Next() {
		var (
			code          grants.DeviceFlowCode
			subjectID     sql.NullString
			creationStr   string
			expirationStr sql.NullString
		)
		if err := rows.Scan(
			&code.UserCode, &code.DeviceCode, &code.ClientID,
			&subjectID, &creationStr, &expirationStr,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning device code row: %w", err)
		}
		code.SubjectID = subjectID.String
		code.CreationTime, err = time.Parse(time.RFC3339Nano, creationStr)
		if err != nil {
			return nil, 0, fmt.Errorf("parsing creation_time: %w", err)
		}
		if code.Expiration, err = parseNullableTime(expirationStr); err != nil {
			return nil, 0, err
		}
		items = append(items, code)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating device code rows: %w", err)
	}

	return items, total, nil
}

// RemoveDeviceCode deletes a device code by user code.
func (s *Store) RemoveDeviceCode(ctx context.Context, userCode string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM device_flow_codes WHERE user_code = ?`, userCode,
	)
	if err != nil {
		return false, fmt.Errorf("deleting device code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected > 0, nil
}

// InsertGrant writes a grant row directly. Grants are normally created by
// the authorization engine; this exists for tests and data import.
func (s *Store) InsertGrant(ctx context.Context, g grants.PersistedGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persisted_grants (
			key, type, client_id, subject_id, session_id, creation_time, expiration, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Key, g.Type, g.ClientID,
		nullableString(g.SubjectID), nullableString(g.SessionID),
		formatTime(g.CreationTime), formatNullableTime(g.Expiration), g.Data,
	)
	if err != nil {
		return fmt.Errorf("inserting grant: %w", err)
	}
	return nil
}

// InsertDeviceCode writes a device code row directly, for tests and data
// import.
func (s *Store) InsertDeviceCode(ctx context.Context, c grants.DeviceFlowCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_flow_codes (
			user_code, device_code, client_id, subject_id, creation_time, expiration
		) VALUES (?, ?, ?, ?, ?, ?)`,
		c.UserCode, c.DeviceCode, c.ClientID,
		nullableString(c.SubjectID), formatTime(c.CreationTime), formatNullableTime(c.Expiration),
	)
	if err != nil {
		return fmt.Errorf("inserting device code: %w", err)
	}
	return nil
}

func (s *Store) deleteCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting grants: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(affected), nil
}

func collectGrants(rows *sql.Rows) ([]grants.PersistedGrant, error) {
	var items []grants.PersistedGrant
	for rows.Next() {
		var (
			g             grants.PersistedGrant
			subjectID     sql.NullString
			sessionID     sql.NullString
			creationStr   string
			expirationStr sql.NullString
		)
		err := rows.Scan(
			&g.Key, &g.Type, &g.ClientID, &subjectID, &sessionID,
			&creationStr, &expirationStr, &g.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning grant row: %w", err)
		}
		g.SubjectID = subjectID.String
		g.SessionID = sessionID.String
		g.CreationTime, err = time.Parse(time.RFC3339Nano, creationStr)
		if err != nil {
			return nil, fmt.Errorf("parsing creation_time: %w", err)
		}
		if g.Expiration, err = parseNullableTime(expirationStr); err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grant rows: %w", err)
	}
	return items, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 25
	}
	return page, pageSize
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &t, nil
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

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
