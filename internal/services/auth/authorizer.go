package auth

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/infrastructure"
)

type Action string

const (
	ActionView    Action = "view"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionPurge   Action = "purge"
)

// Actor is the caller of one operation. Principal is nil for guests.
type Actor struct {
	Principal  *models.Principal
	Admin      bool
	GuestToken string
}

func (a Actor) Authenticated() bool {
	return a.Principal != nil
}

// Permissions is the per-item capability block returned by listings.
type Permissions struct {
	View     bool `json:"view"`
	Delete   bool `json:"delete"`
	Download bool `json:"download"`
}

type Authorizer struct {
	resolver Resolver
}

func NewAuthorizer(resolver Resolver) *Authorizer {
	return &Authorizer{resolver: resolver}
}

// ActorFor resolves the caller of r.
func (a *Authorizer) ActorFor(r *http.Request) Actor {
	p := a.resolver.CurrentPrincipal(r.Context())
	return Actor{
		Principal:  p,
		Admin:      p != nil && a.resolver.IsAdmin(p),
		GuestToken: a.resolver.ResolveGuestToken(r),
	}
}

// Can evaluates action for actor on u. An authenticated identity always takes
// precedence over a guest token sent alongside it.
func (a *Authorizer) Can(actor Actor, action Action, u *models.Upload) bool {
	if u == nil {
		return false
	}
	if actor.Principal != nil {
		if actor.Admin {
			return true
		}
		switch action {
		case ActionRestore, ActionPurge:
			return false
		}
		return u.OwnedBy(actor.Principal.ID)
	}

	switch action {
	case ActionView, ActionUpdate, ActionDelete:
		return actor.GuestToken != "" && u.GuestToken != nil && *u.GuestToken == actor.GuestToken
	}
	return false
}

func (a *Authorizer) Permissions(actor Actor, u *models.Upload) Permissions {
	view := a.Can(actor, ActionView, u)
	return Permissions{
		View:     view,
		Delete:   a.Can(actor, ActionDelete, u),
		Download: view,
	}
}

// Scope narrows a listing to what actor may see. It returns nil, matching
// nothing, for a guest without a token.
func (a *Authorizer) Scope(actor Actor) infrastructure.Scope {
	if actor.Principal != nil {
		p, admin := actor.Principal, actor.Admin
		return func(q *gorm.DB) *gorm.DB {
			return a.resolver.ScopeQuery(q, p, admin)
		}
	}
	if actor.GuestToken == "" {
		return nil
	}
	token := actor.GuestToken
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("guest_token = ?", token)
	}
}
