package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"media-engine/internal/assetpath"
	"media-engine/internal/logging"
	"media-engine/internal/metrics"
)

const keyBytes = 24

// passphraseWords is the pool for generated human-memorable passphrases
// (word + word + two digits, e.g. "maple-harbor42").
var passphraseWords = []string{
	"amber", "aspen", "birch", "breeze", "brook", "candle", "cedar", "cliff",
	"cloud", "coral", "delta", "ember", "fable", "fern", "flint", "frost",
	"gale", "glade", "grove", "harbor", "hazel", "heron", "island", "ivory",
	"juniper", "lagoon", "lark", "lotus", "maple", "meadow", "mesa", "mist",
	"north", "ocean", "opal", "orchid", "pebble", "pine", "plume", "quartz",
	"raven", "reef", "ridge", "river", "salt", "shore", "sierra", "slate",
	"sparrow", "spruce", "stone", "summit", "thistle", "tide", "timber",
	"trail", "tundra", "valley", "vine", "willow", "winter", "wren", "yarrow",
	"zephyr",
}

// IssueOptions controls a newly minted token.
type IssueOptions struct {
	TTL             time.Duration
	RequirePassword bool
	MaxAccesses     int64
	RequireAccount  bool

	// Password, when non-empty, is used instead of a generated passphrase.
	// Implies RequirePassword.
	Password string
}

// Issuer mints, validates and redeems share tokens against a Store.
type Issuer struct {
	store Store
}

// NewIssuer creates an issuer.
func NewIssuer(store Store) *Issuer {
	return &Issuer{store: store}
}

// Issue creates a token for the path. When RequirePassword is set, the
// returned password is the only plaintext copy; the store keeps a bcrypt
// hash.
func (i *Issuer) Issue(ctx context.Context, path assetpath.Path, opts IssueOptions) (Token, string, error) {
	key, err := randomKey()
	if err != nil {
		return Token{}, "", fmt.Errorf("generate share key: %w", err)
	}

	tok := Token{
		Key:            key,
		Path:           path.String(),
		MaxAccesses:    opts.MaxAccesses,
		RequireAccount: opts.RequireAccount,
		CreatedAt:      time.Now(),
	}
	if opts.TTL > 0 {
		tok.ExpiresAt = tok.CreatedAt.Add(opts.TTL)
	}

	var password string
	if opts.RequirePassword || opts.Password != "" {
		password = opts.Password
		if password == "" {
			password, err = randomPassphrase()
			if err != nil {
				return Token{}, "", fmt.Errorf("generate share passphrase: %w", err)
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Token{}, "", fmt.Errorf("hash share passphrase: %w", err)
		}
		tok.PasswordHash = string(hash)
	}

	if err := i.store.CreateShare(ctx, tok); err != nil {
		return Token{}, "", fmt.Errorf("store share token: %w", err)
	}

	metrics.ShareTokensIssued.Inc()
	logging.Info("Share token issued for %q (ttl=%s, maxAccesses=%d, password=%v, account=%v)",
		tok.Path, opts.TTL, opts.MaxAccesses, tok.PasswordHash != "", opts.RequireAccount)
	return tok, password, nil
}

// Validate looks up a token and checks expiry and exhaustion. It does not
// consume an access.
func (i *Issuer) Validate(ctx context.Context, key string) (Token, error) {
	tok, err := i.store.GetShare(ctx, key)
	if err != nil {
		return Token{}, err
	}
	if tok.Expired(time.Now()) {
		return tok, ErrExpired
	}
	if tok.Exhausted() {
		return tok, ErrExhausted
	}
	return tok, nil
}

// CheckPassword compares a supplied passphrase against the token's hash.
// Tokens without a password always pass.
func (i *Issuer) CheckPassword(tok Token, password string) error {
	if !tok.PasswordProtected() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tok.PasswordHash), []byte(password)); err != nil {
		return ErrPassword
	}
	return nil
}

// Redeem consumes one access. Concurrent redeems may both succeed; the
// monotonic increment bounds abuse without needing exactly-once semantics.
func (i *Issuer) Redeem(ctx context.Context, key string) error {
	tok, err := i.Validate(ctx, key)
	if err != nil {
		metrics.ShareRedemptionsTotal.WithLabelValues(redeemResult(err)).Inc()
		return err
	}

	count, err := i.store.IncrementShareAccess(ctx, tok.Key)
	if err != nil {
		// Unlike access checks, a store failure here is a hard error: we
		// cannot hand out an access we failed to count.
		metrics.ShareRedemptionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("increment share access: %w", err)
	}

	metrics.ShareRedemptionsTotal.WithLabelValues("ok").Inc()
	logging.Debug("Share token %s redeemed (access %d/%d)", tok.Key, count, tok.MaxAccesses)
	return nil
}

// Revoke destroys a token.
func (i *Issuer) Revoke(ctx context.Context, key string) error {
	return i.store.DeleteShare(ctx, key)
}

func redeemResult(err error) string {
	switch err {
	case ErrNotFound:
		return "not_found"
	case ErrExpired:
		return "expired"
	case ErrExhausted:
		return "exhausted"
	}
	return "error"
}

func randomKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomPassphrase() (string, error) {
	first, err := randomWord()
	if err != nil {
		return "", err
	}
	second, err := randomWord()
	if err != nil {
		return "", err
	}
	digits, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s%02d", first, second, digits.Int64()), nil
}

func randomWord() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passphraseWords))))
	if err != nil {
		return "", err
	}
	return passphraseWords[n.Int64()], nil
}
