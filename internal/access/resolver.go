package access

import (
	"context"
	"time"

	"media-engine/internal/assetpath"
	"media-engine/internal/logging"
	"media-engine/internal/metrics"
)

// Source provides grant lookups. paths is the ordered prefix list for the
// asset being checked, so one query per subject covers both exact and
// recursive grants.
type Source interface {
	GrantsFor(ctx context.Context, kind SubjectKind, subjectID string, paths []string) ([]Grant, error)
}

// Resolver decides whether a principal may act on a path. It fails closed: a
// store error or an empty grant set both deny.
type Resolver struct {
	src        Source
	openAccess bool
}

// NewResolver creates a resolver. openAccess bypasses every check and exists
// only for non-production environments; enabling it is logged loudly so it
// cannot hide in a deployment.
func NewResolver(src Source, openAccess bool) *Resolver {
	if openAccess {
		logging.Warn("==================================================")
		logging.Warn("OPEN_ACCESS is enabled: ALL access checks bypassed")
		logging.Warn("Never run production with this flag set")
		logging.Warn("==================================================")
	}
	return &Resolver{src: src, openAccess: openAccess}
}

// CanRead reports whether the principal may read the path.
func (r *Resolver) CanRead(ctx context.Context, principal Principal, path assetpath.Path) bool {
	return r.Can(ctx, principal, path, PermRead)
}

// Can reports whether the principal holds the permission on the path.
//
// A permission holds if an unexpired exact-path grant exists for the
// principal (by id or by any of its roles), or an unexpired recursive grant
// exists on any prefix of the path. Administrators bypass all checks.
func (r *Resolver) Can(ctx context.Context, principal Principal, path assetpath.Path, perm Permission) bool {
	allowed := r.resolve(ctx, principal, path, perm)
	if allowed {
		metrics.AccessChecksTotal.WithLabelValues("allow").Inc()
	} else {
		metrics.AccessChecksTotal.WithLabelValues("deny").Inc()
	}
	return allowed
}

func (r *Resolver) resolve(ctx context.Context, principal Principal, path assetpath.Path, perm Permission) bool {
	if principal.Admin {
		return true
	}
	if r.openAccess {
		return true
	}
	if principal.Anonymous() {
		return false
	}

	prefixes := path.Prefixes()
	now := time.Now()

	if r.subjectHolds(ctx, SubjectUser, principal.ID, path, prefixes, perm, now) {
		return true
	}
	for _, role := range principal.Roles {
		if r.subjectHolds(ctx, SubjectRole, role, path, prefixes, perm, now) {
			return true
		}
	}
	return false
}

func (r *Resolver) subjectHolds(ctx context.Context, kind SubjectKind, id string, path assetpath.Path, prefixes []string, perm Permission, now time.Time) bool {
	grants, err := r.src.GrantsFor(ctx, kind, id, prefixes)
	if err != nil {
		// Store failure is treated as "no grant found" so an outage can
		// never widen access.
		logging.Error("grant lookup failed for %s %q: %v", kind, id, err)
		return false
	}

	for _, g := range grants {
		if g.Expired(now) || !g.Allows(perm) {
			continue
		}
		if g.Path == path.String() {
			return true
		}
		if g.Recursive && path.DescendantOf(g.Path) {
			return true
		}
	}
	return false
}
