package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-engine/internal/access"
	"media-engine/internal/share"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engine.db")
	d, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return d
}

func TestGrantsRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	g := access.Grant{
		Kind:      access.SubjectUser,
		SubjectID: "alice",
		Path:      "movies",
		Read:      true,
		Share:     true,
		Recursive: true,
	}
	if err := d.CreateGrant(ctx, g); err != nil {
		t.Fatalf("CreateGrant() error: %v", err)
	}

	grants, err := d.GrantsFor(ctx, access.SubjectUser, "alice", []string{"", "movies", "movies/a.mkv"})
	if err != nil {
		t.Fatalf("GrantsFor() error: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("got %d grants, want 1", len(grants))
	}
	got := grants[0]
	if !got.Read || !got.Share || got.Write || got.Delete {
		t.Errorf("permissions = %+v", got)
	}
	if !got.Recursive || got.Path != "movies" {
		t.Errorf("grant = %+v", got)
	}
	if !got.ExpiresAt.IsZero() {
		t.Errorf("expected zero expiry, got %v", got.ExpiresAt)
	}
}

func TestGrantsForFiltersSubjectAndPath(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	fixtures := []access.Grant{
		{Kind: access.SubjectUser, SubjectID: "alice", Path: "movies", Read: true},
		{Kind: access.SubjectUser, SubjectID: "bob", Path: "movies", Read: true},
		{Kind: access.SubjectRole, SubjectID: "alice", Path: "movies", Read: true},
		{Kind: access.SubjectUser, SubjectID: "alice", Path: "music", Read: true},
	}
	for _, g := range fixtures {
		if err := d.CreateGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	grants, err := d.GrantsFor(ctx, access.SubjectUser, "alice", []string{"", "movies"})
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 {
		t.Fatalf("got %d grants, want 1: %+v", len(grants), grants)
	}

	none, err := d.GrantsFor(ctx, access.SubjectUser, "alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("empty path list should yield no grants, got %d", len(none))
	}
}

func TestDeleteGrant(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	target := access.Grant{Kind: access.SubjectUser, SubjectID: "alice", Path: "movies", Read: true}
	other := access.Grant{Kind: access.SubjectRole, SubjectID: "viewer", Path: "movies", Read: true}
	for _, g := range []access.Grant{target, other} {
		if err := d.CreateGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	n, err := d.DeleteGrant(ctx, access.SubjectUser, "alice", "movies")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d grants, want 1", n)
	}

	remaining, err := d.ListGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].Kind != access.SubjectRole {
		t.Errorf("remaining = %+v, want only the role grant", remaining)
	}

	n, err = d.DeleteGrant(ctx, access.SubjectUser, "alice", "movies")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second delete removed %d grants, want 0", n)
	}
}

func TestDeleteExpiredGrants(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	old := access.Grant{Kind: access.SubjectUser, SubjectID: "alice", Path: "a",
		Read: true, ExpiresAt: time.Now().Add(-time.Hour)}
	live := access.Grant{Kind: access.SubjectUser, SubjectID: "alice", Path: "b",
		Read: true, ExpiresAt: time.Now().Add(time.Hour)}
	forever := access.Grant{Kind: access.SubjectUser, SubjectID: "alice", Path: "c", Read: true}
	for _, g := range []access.Grant{old, live, forever} {
		if err := d.CreateGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	n, err := d.DeleteExpiredGrants(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d grants, want 1", n)
	}

	remaining, err := d.ListGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Errorf("remaining grants = %d, want 2", len(remaining))
	}
}

func TestShareRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	tok := share.Token{
		Key:            "abc123",
		Path:           "movies/a.mkv",
		ExpiresAt:      time.Now().Add(time.Hour).Truncate(time.Second),
		MaxAccesses:    3,
		PasswordHash:   "$2a$10$fakehash",
		RequireAccount: true,
		CreatedAt:      time.Now().Truncate(time.Second),
	}
	if err := d.CreateShare(ctx, tok); err != nil {
		t.Fatalf("CreateShare() error: %v", err)
	}

	got, err := d.GetShare(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetShare() error: %v", err)
	}
	if got.Path != tok.Path || got.MaxAccesses != 3 || !got.RequireAccount {
		t.Errorf("token = %+v", got)
	}
	if got.PasswordHash != tok.PasswordHash {
		t.Errorf("password hash = %q", got.PasswordHash)
	}
	if !got.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Errorf("expiresAt = %v, want %v", got.ExpiresAt, tok.ExpiresAt)
	}
}

func TestGetShareNotFound(t *testing.T) {
	d := newTestDB(t)

	if _, err := d.GetShare(context.Background(), "missing"); !errors.Is(err, share.ErrNotFound) {
		t.Errorf("GetShare(missing) = %v, want share.ErrNotFound", err)
	}
}

func TestIncrementShareAccess(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	tok := share.Token{Key: "inc", Path: "p", CreatedAt: time.Now()}
	if err := d.CreateShare(ctx, tok); err != nil {
		t.Fatal(err)
	}

	for want := int64(1); want <= 3; want++ {
		got, err := d.IncrementShareAccess(ctx, "inc")
		if err != nil {
			t.Fatalf("IncrementShareAccess() error: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	if _, err := d.IncrementShareAccess(ctx, "missing"); !errors.Is(err, share.ErrNotFound) {
		t.Errorf("increment on missing key = %v, want share.ErrNotFound", err)
	}
}

func TestIncrementShareAccessConcurrent(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if err := d.CreateShare(ctx, share.Token{Key: "race", Path: "p", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	const redeems = 20
	var wg sync.WaitGroup
	for i := 0; i < redeems; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.IncrementShareAccess(ctx, "race"); err != nil {
				t.Errorf("IncrementShareAccess() error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := d.GetShare(ctx, "race")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessCount != redeems {
		t.Errorf("access count = %d, want %d", got.AccessCount, redeems)
	}
}

func TestDeleteShare(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if err := d.CreateShare(ctx, share.Token{Key: "gone", Path: "p", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := d.DeleteShare(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.GetShare(ctx, "gone"); !errors.Is(err, share.ErrNotFound) {
		t.Errorf("GetShare(deleted) = %v, want share.ErrNotFound", err)
	}
	// Idempotent delete.
	if err := d.DeleteShare(ctx, "gone"); err != nil {
		t.Errorf("second DeleteShare() error: %v", err)
	}
}

func TestDeleteExpiredShares(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	now := time.Now()
	fixtures := []share.Token{
		{Key: "old", Path: "p", ExpiresAt: now.Add(-time.Hour), CreatedAt: now},
		{Key: "live", Path: "p", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
		{Key: "forever", Path: "p", CreatedAt: now},
	}
	for _, tok := range fixtures {
		if err := d.CreateShare(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}

	n, err := d.DeleteExpiredShares(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d shares, want 1", n)
	}

	tokens, err := d.ListShares(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 {
		t.Errorf("remaining shares = %d, want 2", len(tokens))
	}
}
