// Package auth decides who may act on an upload.
package auth

import (
	"context"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

// GuestTokenHeader carries the guest session token when it is not in the query or form.
const GuestTokenHeader = "X-Guest-Token"

// Resolver is supplied by the embedding application. It defines who the caller
// is, who counts as an administrator, what "my uploads" means for an
// authenticated caller, and where a guest token is read from.
type Resolver interface {
	CurrentPrincipal(ctx context.Context) *models.Principal
	IsAdmin(p *models.Principal) bool
	// ScopeQuery narrows q to the records p may list. It is never called for guests.
	ScopeQuery(q *gorm.DB, p *models.Principal, isAdmin bool) *gorm.DB
	ResolveGuestToken(r *http.Request) string
}

// DefaultResolver reads the principal set by the bearer middleware and treats
// holders of AdminRole as administrators. Non-admins see the records they own.
type DefaultResolver struct {
	AdminRole string
}

func NewDefaultResolver(adminRole string) *DefaultResolver {
	return &DefaultResolver{AdminRole: adminRole}
}

func (d *DefaultResolver) CurrentPrincipal(ctx context.Context) *models.Principal {
	return models.PrincipalFromContext(ctx)
}

func (d *DefaultResolver) IsAdmin(p *models.Principal) bool {
	return p.HasRole(d.AdminRole)
}

func (d *DefaultResolver) ScopeQuery(q *gorm.DB, p *models.Principal, isAdmin bool) *gorm.DB {
	if isAdmin {
		return q
	}
	return q.Where("user_id = ?", p.ID)
}

// ResolveGuestToken looks at the header first, then the query string, then the form body.
func (d *DefaultResolver) ResolveGuestToken(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get(GuestTokenHeader)); tok != "" {
		return tok
	}
	if tok := r.URL.Query().Get("guest_token"); tok != "" {
		return tok
	}
	return r.FormValue("guest_token")
}
