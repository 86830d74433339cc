// Package identity turns the storefront auth cookie into a viewer identity object.
package identity

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
)

// FromToken reads the claims of the storefront session JWT and returns an
// identity object understood by domain.ResolveViewer.
//
// The signature is not verified: the backend verifies the same token on every
// request, this only needs to know which viewer the token belongs to.
func FromToken(token string) (map[string]any, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("parse session token: unexpected claims type")
	}

	identity := map[string]any(claims)
	if _, hasID := identity["_id"]; !hasID {
		if _, hasAlt := identity["id"]; !hasAlt {
			// Tokens minted by the auth provider only carry the subject.
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				identity["id"] = sub
			}
		}
	}
	return identity, nil
}

// Attach stores the session token as a cookie for every origin the client talks to,
// so REST calls and the real-time handshake carry the same ambient credentials.
func Attach(jar http.CookieJar, cookieName, token string, origins ...string) error {
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("attach session cookie to %q: %w", origin, err)
		}
		jar.SetCookies(u, []*http.Cookie{{Name: cookieName, Value: token, Path: "/", HttpOnly: true}})
	}
	return nil
}
