package handlers

import (
	"net/http"
	"strings"

	"media-engine/internal/access"
)

// Authentication happens upstream (reverse proxy or gateway); the resolved
// identity arrives in trusted headers. An absent identity is an anonymous
// principal, which only share tokens or open-access mode can let through.
const (
	headerPrincipalID    = "X-Principal-Id"
	headerPrincipalRoles = "X-Principal-Roles"
	headerPrincipalAdmin = "X-Principal-Admin"
)

func principalFrom(r *http.Request) access.Principal {
	p := access.Principal{
		ID:    r.Header.Get(headerPrincipalID),
		Admin: strings.EqualFold(r.Header.Get(headerPrincipalAdmin), "true"),
	}
	if roles := r.Header.Get(headerPrincipalRoles); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				p.Roles = append(p.Roles, role)
			}
		}
	}
	return p
}
