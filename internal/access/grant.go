// Package access answers whether a principal may perform an action on a
// logical asset path, based on stored permission grants.
package access

import (
	"fmt"
	"time"
)

// Permission is the closed set of actions a grant can allow.
type Permission int

const (
	// PermRead allows reading/streaming an asset.
	PermRead Permission = iota
	// PermWrite allows modifying an asset.
	PermWrite
	// PermDelete allows removing an asset.
	PermDelete
	// PermShare allows issuing share tokens for an asset.
	PermShare
)

func (p Permission) String() string {
	switch p {
	case PermRead:
		return "read"
	case PermWrite:
		return "write"
	case PermDelete:
		return "delete"
	case PermShare:
		return "share"
	}
	return fmt.Sprintf("permission(%d)", int(p))
}

// ParsePermission converts a permission name to its enum value.
func ParsePermission(s string) (Permission, error) {
	switch s {
	case "read":
		return PermRead, nil
	case "write":
		return PermWrite, nil
	case "delete":
		return PermDelete, nil
	case "share":
		return PermShare, nil
	}
	return 0, fmt.Errorf("unknown permission %q", s)
}

// SubjectKind distinguishes user grants from role grants.
type SubjectKind string

const (
	// SubjectUser grants to a single user id.
	SubjectUser SubjectKind = "user"
	// SubjectRole grants to every member of a role.
	SubjectRole SubjectKind = "role"
)

// Grant is a stored permission record. Grants are created outside this
// engine and are read-only here; expired grants are invisible to resolution
// but not removed.
type Grant struct {
	Kind      SubjectKind
	SubjectID string
	Path      string
	Read      bool
	Write     bool
	Delete    bool
	Share     bool
	Recursive bool
	ExpiresAt time.Time // zero means no expiry
}

// Allows reports whether the grant carries the given permission. The switch
// is exhaustive over the closed Permission set.
func (g Grant) Allows(p Permission) bool {
	switch p {
	case PermRead:
		return g.Read
	case PermWrite:
		return g.Write
	case PermDelete:
		return g.Delete
	case PermShare:
		return g.Share
	}
	return false
}

// Expired reports whether the grant's TTL has passed at the given instant.
func (g Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// Principal is the authenticated identity making a request. Authentication
// itself happens outside the engine; the principal arrives resolved.
type Principal struct {
	ID    string
	Roles []string
	Admin bool
}

// Anonymous reports whether the principal carries no identity.
func (p Principal) Anonymous() bool {
	return p.ID == "" && !p.Admin
}
