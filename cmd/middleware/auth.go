// Package middleware authenticates bearer tokens against the OIDC issuer.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

var errInvalidClient = errors.New("invalid client")

// Verifier turns a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*models.Principal, error)
}

// OIDCVerifier checks Keycloak-issued tokens and their authorized party.
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	allowedAZP string
}

func InitAuth(ctx context.Context, issuerURL, allowedAZP string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider %s: %w", issuerURL, err)
	}
	return &OIDCVerifier{
		verifier:   provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
		allowedAZP: allowedAZP,
	}, nil
}

type keycloakClaims struct {
	Sub               string `json:"sub"`
	Azp               string `json:"azp"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*models.Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var claims keycloakClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("claim parse failed: %w", err)
	}
	return principalFromClaims(claims, v.allowedAZP)
}

func principalFromClaims(claims keycloakClaims, allowedAZP string) (*models.Principal, error) {
	// Manually check azp, the client id check is skipped on purpose
	if allowedAZP != "" && claims.Azp != allowedAZP {
		return nil, fmt.Errorf("%w: azp=%s", errInvalidClient, claims.Azp)
	}
	if claims.Sub == "" {
		return nil, errors.New("token has no subject")
	}
	return &models.Principal{
		ID:       claims.Sub,
		Username: claims.PreferredUsername,
		Roles:    claims.RealmAccess.Roles,
	}, nil
}

// Authenticate attaches the Principal of a valid bearer token to the request.
// Requests without a token continue as guests; a bad token is rejected.
// A nil verifier disables bearer auth entirely.
func Authenticate(v Verifier, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "auth").Logger()
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || v == nil {
			c.Next()
			return
		}

		tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid format"})
			return
		}

		p, err := v.Verify(c.Request.Context(), strings.TrimSpace(tokenStr))
		if err != nil {
			log.Debug().Err(err).Msg("[AUTH] verify failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(models.WithPrincipal(c.Request.Context(), p))
		c.Set("user_id", p.ID)
		c.Next()
	}
}
