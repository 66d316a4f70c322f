// grantctl manages access grants and share tokens in the engine database.
// It operates directly on the SQLite file, so run it on the same volume the
// engine mounts (or point DATABASE_DIR at it).
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"media-engine/internal/access"
	"media-engine/internal/assetpath"
	"media-engine/internal/database"
	"media-engine/internal/share"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultDatabaseDir = "/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "engine.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	ok := true
	switch command {
	case "grant":
		ok = createGrant(ctx, db, os.Args[2:])
	case "revoke":
		ok = revokeGrant(ctx, db, os.Args[2:])
	case "grants":
		ok = listGrants(ctx, db)
	case "share":
		ok = issueShare(ctx, db, os.Args[2:])
	case "shares":
		ok = listShares(ctx, db)
	case "share-revoke":
		ok = revokeShare(ctx, db, os.Args[2:])
	case "cleanup":
		ok = cleanup(ctx, db)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage()
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// sanitizeCommand returns a safe representation of a command string for
// display, replacing anything outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Println("Media Engine Grant Management")
	fmt.Println("")
	fmt.Println("Usage: grantctl <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  grant         - Create an access grant")
	fmt.Println("  revoke        - Remove grants for a subject and path")
	fmt.Println("  grants        - List all grants")
	fmt.Println("  share         - Issue a share token")
	fmt.Println("  shares        - List all share tokens")
	fmt.Println("  share-revoke  - Revoke a share token")
	fmt.Println("  cleanup       - Remove expired grants and share tokens")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Printf("  DATABASE_DIR - Path to database directory (default: %s)\n", defaultDatabaseDir)
}

// parseSubject splits "user:alice" or "role:editor" into its parts.
func parseSubject(s string) (access.SubjectKind, string, error) {
	kind, id, found := strings.Cut(s, ":")
	if !found || id == "" {
		return "", "", fmt.Errorf("subject must be user:<id> or role:<name>, got %q", s)
	}
	switch kind {
	case "user":
		return access.SubjectUser, id, nil
	case "role":
		return access.SubjectRole, id, nil
	default:
		return "", "", fmt.Errorf("unknown subject kind %q", kind)
	}
}

func createGrant(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	subject := fs.String("subject", "", "user:<id> or role:<name> (required)")
	path := fs.String("path", "", "asset path the grant covers (required)")
	perms := fs.String("perms", "read", "comma-separated permissions: read,write,delete,share")
	recursive := fs.Bool("recursive", false, "grant applies to the whole subtree")
	ttl := fs.Duration("ttl", 0, "grant lifetime, 0 means no expiry")
	fs.Parse(args)

	kind, id, err := parseSubject(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	ap, err := assetpath.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid path %q: %v\n", *path, err)
		return false
	}

	g := access.Grant{Kind: kind, SubjectID: id, Path: ap.String(), Recursive: *recursive}
	for _, p := range strings.Split(*perms, ",") {
		perm, err := access.ParsePermission(strings.TrimSpace(p))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return false
		}
		switch perm {
		case access.PermRead:
			g.Read = true
		case access.PermWrite:
			g.Write = true
		case access.PermDelete:
			g.Delete = true
		case access.PermShare:
			g.Share = true
		}
	}
	if *ttl > 0 {
		g.ExpiresAt = time.Now().Add(*ttl)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.CreateGrant(ctx, g); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	fmt.Printf("Granted %s on %q to %s:%s\n", *perms, g.Path, kind, id)
	return true
}

func revokeGrant(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	subject := fs.String("subject", "", "user:<id> or role:<name> (required)")
	path := fs.String("path", "", "asset path of the grant (required)")
	fs.Parse(args)

	kind, id, err := parseSubject(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	ap, err := assetpath.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid path %q: %v\n", *path, err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	n, err := db.DeleteGrant(ctx, kind, id, ap.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if n == 0 {
		fmt.Println("No matching grants")
		return true
	}
	fmt.Printf("Removed %d grant(s)\n", n)
	return true
}

func listGrants(ctx context.Context, db *database.Database) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	grants, err := db.ListGrants(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if len(grants) == 0 {
		fmt.Println("No grants")
		return true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tPATH\tPERMS\tRECURSIVE\tEXPIRES")
	for _, g := range grants {
		fmt.Fprintf(w, "%s:%s\t%s\t%s\t%v\t%s\n",
			g.Kind, g.SubjectID, g.Path, permString(g), g.Recursive, expiryString(g.ExpiresAt))
	}
	w.Flush()
	return true
}

func permString(g access.Grant) string {
	var parts []string
	if g.Read {
		parts = append(parts, "read")
	}
	if g.Write {
		parts = append(parts, "write")
	}
	if g.Delete {
		parts = append(parts, "delete")
	}
	if g.Share {
		parts = append(parts, "share")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func expiryString(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func issueShare(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	path := fs.String("path", "", "asset path to share (required)")
	ttl := fs.Duration("ttl", 0, "token lifetime, 0 means no expiry")
	maxAccesses := fs.Int64("max-accesses", 0, "access budget, 0 means unlimited")
	requireAccount := fs.Bool("require-account", false, "require an authenticated principal")
	withPassword := fs.Bool("password", false, "protect the token with a password (prompts, or generates one on empty input)")
	fs.Parse(args)

	ap, err := assetpath.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid path %q: %v\n", *path, err)
		return false
	}

	opts := share.IssueOptions{
		TTL:            *ttl,
		MaxAccesses:    *maxAccesses,
		RequireAccount: *requireAccount,
	}
	if *withPassword {
		opts.RequirePassword = true
		password, ok := promptPassword()
		if !ok {
			return false
		}
		opts.Password = password
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	tok, password, err := share.NewIssuer(db).Issue(ctx, ap, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	fmt.Printf("Token:    %s\n", tok.Key)
	fmt.Printf("URL path: /shared/%s\n", tok.Key)
	if password != "" && opts.Password == "" {
		fmt.Printf("Password: %s (generated, shown once)\n", password)
	}
	if !tok.ExpiresAt.IsZero() {
		fmt.Printf("Expires:  %s\n", tok.ExpiresAt.Format(time.RFC3339))
	}
	return true
}

// promptPassword reads a password twice without echo. Empty input means the
// caller wants a generated passphrase.
func promptPassword() (string, bool) {
	fmt.Print("Share password (empty to generate): ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		return "", false
	}
	if len(password) == 0 {
		return "", true
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		return "", false
	}
	if !bytes.Equal(password, confirm) {
		fmt.Fprintln(os.Stderr, "Error: passwords do not match")
		return "", false
	}
	return string(password), true
}

func listShares(ctx context.Context, db *database.Database) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tokens, err := db.ListShares(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		fmt.Println("No share tokens")
		return true
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tPATH\tACCESSES\tPASSWORD\tEXPIRES\tSTATE")
	for _, tok := range tokens {
		budget := "unlimited"
		if tok.MaxAccesses > 0 {
			budget = fmt.Sprintf("%d/%d", tok.AccessCount, tok.MaxAccesses)
		}
		state := "active"
		if tok.Expired(now) {
			state = "expired"
		} else if tok.Exhausted() {
			state = "exhausted"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			tok.Key, tok.Path, budget, tok.PasswordProtected(), expiryString(tok.ExpiresAt), state)
	}
	w.Flush()
	return true
}

func revokeShare(ctx context.Context, db *database.Database, args []string) bool {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: grantctl share-revoke <token>")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.DeleteShare(ctx, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	fmt.Println("Share token revoked")
	return true
}

func cleanup(ctx context.Context, db *database.Database) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now()
	grants, err := db.DeleteExpiredGrants(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	shares, err := db.DeleteExpiredShares(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	fmt.Printf("Removed %d expired grant(s) and %d expired share token(s)\n", grants, shares)
	return true
}
