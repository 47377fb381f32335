package identity_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/service/identity"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	gt.NoError(t, err).Required()
	return s
}

func TestStatic(t *testing.T) {
	ctx := context.Background()

	name, err := identity.Static(" Alice ").DisplayName(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, name).Equal("Alice")

	_, err = identity.Static("  ").DisplayName(ctx)
	gt.Error(t, err).Is(identity.ErrNoIdentity)
}

func TestFromToken(t *testing.T) {
	testCases := []struct {
		name    string
		claims  jwt.MapClaims
		want    string
		wantErr error
	}{
		{name: "name claim", claims: jwt.MapClaims{"name": "Alice", "email": "alice@example.com"}, want: "Alice"},
		{name: "email fallback", claims: jwt.MapClaims{"email": "bob@example.com", "sub": "42"}, want: "bob@example.com"},
		{name: "subject fallback", claims: jwt.MapClaims{"sub": "user-42"}, want: "user-42"},
		{name: "no usable claim", claims: jwt.MapClaims{"iat": 1}, wantErr: identity.ErrNoIdentity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := identity.FromToken(signedToken(t, tc.claims))
			if tc.wantErr != nil {
				gt.Error(t, err).Is(tc.wantErr)
				return
			}
			gt.NoError(t, err).Required()
			name, err := p.DisplayName(context.Background())
			gt.NoError(t, err).Required()
			gt.Value(t, name).Equal(tc.want)
		})
	}

	t.Run("garbage token", func(t *testing.T) {
		_, err := identity.FromToken("not-a-token")
		gt.Error(t, err).Is(identity.ErrInvalidToken)
	})
}
