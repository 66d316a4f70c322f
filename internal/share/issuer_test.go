package share

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"media-engine/internal/assetpath"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func newMemStore() *memStore {
	return &memStore{tokens: make(map[string]Token)}
}

func (s *memStore) CreateShare(_ context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.Key] = tok
	return nil
}

func (s *memStore) GetShare(_ context.Context, key string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return Token{}, ErrNotFound
	}
	return tok, nil
}

func (s *memStore) IncrementShareAccess(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return 0, ErrNotFound
	}
	tok.AccessCount++
	s.tokens[key] = tok
	return tok.AccessCount, nil
}

func (s *memStore) DeleteShare(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

func (s *memStore) DeleteExpiredShares(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, tok := range s.tokens {
		if !tok.ExpiresAt.IsZero() && tok.ExpiresAt.Before(before) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func testPath(t *testing.T) assetpath.Path {
	t.Helper()
	p, err := assetpath.New("movies/a.mkv")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIssueAndValidate(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	tok, password, err := issuer.Issue(ctx, testPath(t), IssueOptions{TTL: time.Hour})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if tok.Key == "" {
		t.Error("expected opaque key")
	}
	if password != "" {
		t.Error("no password requested, got one")
	}

	got, err := issuer.Validate(ctx, tok.Key)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got.Path != "movies/a.mkv" {
		t.Errorf("token path = %q", got.Path)
	}
}

func TestIssueKeysAreUnique(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, _, err := issuer.Issue(ctx, testPath(t), IssueOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if seen[tok.Key] {
			t.Fatalf("duplicate key %q", tok.Key)
		}
		seen[tok.Key] = true
	}
}

func TestValidateNotFound(t *testing.T) {
	issuer := NewIssuer(newMemStore())

	if _, err := issuer.Validate(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Validate(unknown) = %v, want ErrNotFound", err)
	}
}

func TestValidateExpired(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store)
	ctx := context.Background()

	tok, _, err := issuer.Issue(ctx, testPath(t), IssueOptions{TTL: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := issuer.Validate(ctx, tok.Key); !errors.Is(err, ErrExpired) {
		t.Errorf("Validate(expired) = %v, want ErrExpired", err)
	}
}

func TestExhaustion(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	tok, _, err := issuer.Issue(ctx, testPath(t), IssueOptions{TTL: time.Hour, MaxAccesses: 1})
	if err != nil {
		t.Fatal(err)
	}

	if err := issuer.Redeem(ctx, tok.Key); err != nil {
		t.Fatalf("first Redeem() error: %v", err)
	}

	// Exhausted even though the expiry is still in the future.
	if _, err := issuer.Validate(ctx, tok.Key); !errors.Is(err, ErrExhausted) {
		t.Errorf("Validate after maxAccesses = %v, want ErrExhausted", err)
	}
	if err := issuer.Redeem(ctx, tok.Key); !errors.Is(err, ErrExhausted) {
		t.Errorf("Redeem after maxAccesses = %v, want ErrExhausted", err)
	}
}

func TestUnlimitedAccesses(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	tok, _, err := issuer.Issue(ctx, testPath(t), IssueOptions{})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		if err := issuer.Redeem(ctx, tok.Key); err != nil {
			t.Fatalf("Redeem #%d error: %v", i+1, err)
		}
	}
}

func TestPasswordProtection(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	tok, password, err := issuer.Issue(ctx, testPath(t), IssueOptions{RequirePassword: true})
	if err != nil {
		t.Fatal(err)
	}

	matched, regexErr := regexp.MatchString(`^[a-z]+-[a-z]+\d{2}$`, password)
	if regexErr != nil {
		t.Fatal(regexErr)
	}
	if !matched {
		t.Errorf("passphrase %q does not match word-word-digits shape", password)
	}
	if tok.PasswordHash == password || tok.PasswordHash == "" {
		t.Error("password must be stored hashed, never plaintext")
	}

	stored, err := issuer.Validate(ctx, tok.Key)
	if err != nil {
		t.Fatal(err)
	}
	if err := issuer.CheckPassword(stored, password); err != nil {
		t.Errorf("CheckPassword(correct) = %v", err)
	}
	if err := issuer.CheckPassword(stored, "wrong-guess99"); !errors.Is(err, ErrPassword) {
		t.Errorf("CheckPassword(wrong) = %v, want ErrPassword", err)
	}
}

func TestOperatorSuppliedPassword(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	tok, password, err := issuer.Issue(ctx, testPath(t), IssueOptions{Password: "hunter2hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if password != "hunter2hunter2" {
		t.Errorf("password = %q, want the supplied one", password)
	}
	if tok.PasswordHash == "" || tok.PasswordHash == password {
		t.Error("supplied password must be stored hashed")
	}
	if err := issuer.CheckPassword(tok, "hunter2hunter2"); err != nil {
		t.Errorf("CheckPassword(supplied) = %v", err)
	}
}

func TestRevoke(t *testing.T) {
	issuer := NewIssuer(newMemStore())
	ctx := context.Background()

	tok, _, err := issuer.Issue(ctx, testPath(t), IssueOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := issuer.Revoke(ctx, tok.Key); err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Validate(ctx, tok.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Validate(revoked) = %v, want ErrNotFound", err)
	}
}
