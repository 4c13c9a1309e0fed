// Package portal serves the dashboard-facing API: key management, usage,
// pack enablement, and the live activity stream. Portal callers authenticate
// with a bearer JWT, never with an API key.
package portal

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"lumen/pkg/httpx"
)

type contextKey int

const principalKey contextKey = 0

// Principal is the authenticated portal user with their organization
// resolved. The plan always comes from the organizations table, never from
// a token claim.
type Principal struct {
	UserID  string
	Email   string
	OrgID   string
	OrgName string
	Plan    string
}

// Org is the owning organization row the resolver returns.
type Org struct {
	ID   string
	Name string
	Plan string
}

// ErrNoOrg means the authenticated user owns no organization.
var ErrNoOrg = errors.New("no organization for user")

// OrgResolver maps a token subject to their organization.
type OrgResolver interface {
	OrgByOwner(ctx context.Context, userID string) (Org, error)
}

// Authenticator verifies portal bearer tokens.
type Authenticator struct {
	Secret []byte
	Orgs   OrgResolver
}

// PrincipalFromContext returns the principal placed by Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Middleware verifies the Authorization bearer token, resolves the user's
// organization, and stores the principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			httpx.Error(w, http.StatusUnauthorized, "authorization token required")
			return
		}
		principal, err := a.Authenticate(r.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoOrg):
			httpx.Error(w, http.StatusNotFound, "organization not found for user")
			return
		case errors.Is(err, jwt.ErrTokenExpired):
			httpx.Error(w, http.StatusUnauthorized, "token has expired")
			return
		case errors.Is(err, errBadToken):
			httpx.Error(w, http.StatusUnauthorized, "invalid authorization token")
			return
		default:
			log.Printf("portal: authentication error: %v", err)
			httpx.Error(w, http.StatusInternalServerError, "authentication service error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	})
}

var errBadToken = errors.New("invalid token")

// Authenticate parses and verifies one token. Only HS256 is accepted; a
// token signed with any other method is invalid regardless of its payload.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return a.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, jwt.ErrTokenExpired
		}
		return Principal{}, errors.Join(errBadToken, err)
	}
	if !parsed.Valid {
		return Principal{}, errBadToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, errBadToken
	}
	email, _ := claims["email"].(string)

	org, err := a.Orgs.OrgByOwner(ctx, sub)
	if err != nil {
		if errors.Is(err, ErrNoOrg) {
			return Principal{}, ErrNoOrg
		}
		return Principal{}, err
	}
	return Principal{UserID: sub, Email: email, OrgID: org.ID, OrgName: org.Name, Plan: org.Plan}, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
