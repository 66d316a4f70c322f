package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"media-engine/internal/access"
)

// GrantsFor returns the unexpired-or-not grants for one subject across the
// given path prefixes. Expiry filtering is left to the resolver so its
// clock is the single authority; physically deleting expired rows is an
// operator concern (see DeleteExpiredGrants).
func (d *Database) GrantsFor(ctx context.Context, kind access.SubjectKind, subjectID string, paths []string) ([]access.Grant, error) {
	start := time.Now()
	var err error
	defer func() { observe("grants_for", start, err) }()

	if len(paths) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(paths))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(paths)+2)
	args = append(args, string(kind), subjectID)
	for _, p := range paths {
		args = append(args, p)
	}

	query := fmt.Sprintf(`
		SELECT subject_kind, subject_id, path,
		       can_read, can_write, can_delete, can_share,
		       recursive, expires_at
		FROM grants
		WHERE subject_kind = ? AND subject_id = ? AND path IN (%s)`, placeholders)

	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		g, scanErr := scanGrant(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("scan grant: %w", scanErr)
		}
		grants = append(grants, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// CreateGrant inserts a grant row. Used by grantctl and tests; the engine
// itself only reads grants.
func (d *Database) CreateGrant(ctx context.Context, g access.Grant) error {
	start := time.Now()
	var err error
	defer func() { observe("create_grant", start, err) }()

	var expires interface{}
	if !g.ExpiresAt.IsZero() {
		expires = g.ExpiresAt.Unix()
	}

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(execCtx, `
		INSERT INTO grants (subject_kind, subject_id, path,
			can_read, can_write, can_delete, can_share, recursive, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(g.Kind), g.SubjectID, g.Path,
		g.Read, g.Write, g.Delete, g.Share, g.Recursive, expires)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

// ListGrants returns every stored grant, for the operator CLI.
func (d *Database) ListGrants(ctx context.Context) ([]access.Grant, error) {
	start := time.Now()
	var err error
	defer func() { observe("list_grants", start, err) }()

	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(queryCtx, `
		SELECT subject_kind, subject_id, path,
		       can_read, can_write, can_delete, can_share,
		       recursive, expires_at
		FROM grants ORDER BY path, subject_kind, subject_id`)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		g, scanErr := scanGrant(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("scan grant: %w", scanErr)
		}
		grants = append(grants, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// DeleteGrant removes every grant row matching the subject and path.
// Returns the number of rows removed.
func (d *Database) DeleteGrant(ctx context.Context, kind access.SubjectKind, subjectID, path string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { observe("delete_grant", start, err) }()

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(execCtx,
		`DELETE FROM grants WHERE subject_kind = ? AND subject_id = ? AND path = ?`,
		string(kind), subjectID, path)
	if err != nil {
		return 0, fmt.Errorf("delete grant: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredGrants physically removes grants whose expiry passed before
// the given instant. Expired grants are already invisible to resolution;
// this only reclaims rows.
func (d *Database) DeleteExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { observe("delete_expired_grants", start, err) }()

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(execCtx,
		`DELETE FROM grants WHERE expires_at IS NOT NULL AND expires_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired grants: %w", err)
	}
	return res.RowsAffected()
}

func scanGrant(rows *sql.Rows) (access.Grant, error) {
	var g access.Grant
	var kind string
	var expires sql.NullInt64
	if err := rows.Scan(&kind, &g.SubjectID, &g.Path,
		&g.Read, &g.Write, &g.Delete, &g.Share, &g.Recursive, &expires); err != nil {
		return access.Grant{}, err
	}
	g.Kind = access.SubjectKind(kind)
	if expires.Valid {
		g.ExpiresAt = time.Unix(expires.Int64, 0)
	}
	return g, nil
}
