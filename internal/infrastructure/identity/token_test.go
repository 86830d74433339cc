package identity_test

import (
	"net/http/cookiejar"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/notification-client/internal/domain"
	"vn.io.arda/notification-client/internal/infrastructure/identity"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestFromToken(t *testing.T) {
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   string
		wantOK bool
	}{
		{"_id claim", jwt.MapClaims{"_id": "u-1", "role": "customer"}, "u-1", true},
		{"id claim", jwt.MapClaims{"id": "u-2"}, "u-2", true},
		{"subject fallback", jwt.MapClaims{"sub": "u-3"}, "u-3", true},
		{"no identity", jwt.MapClaims{"role": "admin"}, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ident, err := identity.FromToken(sign(t, tc.claims))
			require.NoError(t, err)

			got, ok := domain.ResolveViewer(ident)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromToken_Malformed(t *testing.T) {
	_, err := identity.FromToken("not-a-jwt")
	assert.Error(t, err)
}

func TestAttach(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	require.NoError(t, identity.Attach(jar, "token", "abc", "http://api.local:5000", "http://rt.local:5001"))

	for _, origin := range []string{"http://api.local:5000/api/notification/user/x", "http://rt.local:5001/socket"} {
		u, _ := url.Parse(origin)
		cookies := jar.Cookies(u)
		require.Len(t, cookies, 1, origin)
		assert.Equal(t, "abc", cookies[0].Value)
	}
}
