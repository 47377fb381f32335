// Package identity provides the display name stamped on update requests
package identity

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
)

var (
	ErrNoIdentity   = goerr.New("no user identity")
	ErrInvalidToken = goerr.New("invalid identity token")
)

type static struct {
	name string
}

// Static always returns name
func Static(name string) interfaces.IdentityProvider {
	return &static{name: strings.TrimSpace(name)}
}

func (s *static) DisplayName(_ context.Context) (string, error) {
	if s.name == "" {
		return "", goerr.Wrap(ErrNoIdentity, "display name is empty")
	}
	return s.name, nil
}

type tokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type token struct {
	name string
}

// FromToken derives the display name from the claims of a session token
// issued by the board server. The signature is not verified: the server
// authenticates the socket itself, and the name is only a label.
func FromToken(raw string) (interfaces.IdentityProvider, error) {
	var claims tokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(raw), &claims); err != nil {
		return nil, goerr.Wrap(ErrInvalidToken, "failed to parse token", goerr.V("cause", err.Error()))
	}

	for _, candidate := range []string{claims.Name, claims.Email, claims.Subject} {
		if name := strings.TrimSpace(candidate); name != "" {
			return &token{name: name}, nil
		}
	}
	return nil, goerr.Wrap(ErrNoIdentity, "token carries no name, email or subject claim")
}

func (t *token) DisplayName(_ context.Context) (string, error) {
	return t.name, nil
}
