package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-engine/internal/share"
)

// CreateShare stores a share token row.
func (d *Database) CreateShare(ctx context.Context, tok share.Token) error {
	start := time.Now()
	var err error
	defer func() { observe("create_share", start, err) }()

	var expires interface{}
	if !tok.ExpiresAt.IsZero() {
		expires = tok.ExpiresAt.Unix()
	}

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(execCtx, `
		INSERT INTO shares (key, path, expires_at, max_accesses, access_count,
			password_hash, require_account, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tok.Key, tok.Path, expires, tok.MaxAccesses, tok.AccessCount,
		tok.PasswordHash, tok.RequireAccount, tok.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// GetShare fetches a token by key, returning share.ErrNotFound for unknown
// keys.
func (d *Database) GetShare(ctx context.Context, key string) (share.Token, error) {
	start := time.Now()
	var err error
	defer func() { observe("get_share", start, err) }()

	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tok share.Token
	var expires sql.NullInt64
	var created int64
	err = d.db.QueryRowContext(queryCtx, `
		SELECT key, path, expires_at, max_accesses, access_count,
		       password_hash, require_account, created_at
		FROM shares WHERE key = ?`, key).
		Scan(&tok.Key, &tok.Path, &expires, &tok.MaxAccesses, &tok.AccessCount,
			&tok.PasswordHash, &tok.RequireAccount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil // observed as ok: an unknown key is not a store fault
		return share.Token{}, share.ErrNotFound
	}
	if err != nil {
		return share.Token{}, fmt.Errorf("query share: %w", err)
	}

	if expires.Valid {
		tok.ExpiresAt = time.Unix(expires.Int64, 0)
	}
	tok.CreatedAt = time.Unix(created, 0)
	return tok, nil
}

// IncrementShareAccess bumps the access counter in a single UPDATE so the
// increment is atomic under concurrent redeems, and returns the new count.
func (d *Database) IncrementShareAccess(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { observe("increment_share_access", start, err) }()

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int64
	err = d.db.QueryRowContext(execCtx, `
		UPDATE shares SET access_count = access_count + 1
		WHERE key = ?
		RETURNING access_count`, key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return 0, share.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment share access: %w", err)
	}
	return count, nil
}

// DeleteShare revokes a token. Deleting an absent key is not an error.
func (d *Database) DeleteShare(ctx context.Context, key string) error {
	start := time.Now()
	var err error
	defer func() { observe("delete_share", start, err) }()

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(execCtx, `DELETE FROM shares WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return nil
}

// DeleteExpiredShares reclaims rows for tokens whose expiry passed before
// the given instant.
func (d *Database) DeleteExpiredShares(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { observe("delete_expired_shares", start, err) }()

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(execCtx,
		`DELETE FROM shares WHERE expires_at IS NOT NULL AND expires_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired shares: %w", err)
	}
	return res.RowsAffected()
}

// ListShares returns every stored share token, for the operator CLI.
func (d *Database) ListShares(ctx context.Context) ([]share.Token, error) {
	start := time.Now()
	var err error
	defer func() { observe("list_shares", start, err) }()

	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(queryCtx, `
		SELECT key, path, expires_at, max_accesses, access_count,
		       password_hash, require_account, created_at
		FROM shares ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query shares: %w", err)
	}
	defer rows.Close()

	var tokens []share.Token
	for rows.Next() {
		var tok share.Token
		var expires sql.NullInt64
		var created int64
		if scanErr := rows.Scan(&tok.Key, &tok.Path, &expires, &tok.MaxAccesses,
			&tok.AccessCount, &tok.PasswordHash, &tok.RequireAccount, &created); scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("scan share: %w", scanErr)
		}
		if expires.Valid {
			tok.ExpiresAt = time.Unix(expires.Int64, 0)
		}
		tok.CreatedAt = time.Unix(created, 0)
		tokens = append(tokens, tok)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return tokens, nil
}
