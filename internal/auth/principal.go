package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("missing or invalid credentials")

// Principal is the authenticated identity attached to a request or
// connection. How the token was minted is someone else's problem.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

type claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// FromRequest resolves the principal from a Bearer token, falling back to the
// "token" query parameter for WebSocket clients that cannot set headers.
func (r *Resolver) FromRequest(req *http.Request) (Principal, error) {
	raw := ""
	if h := req.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else if q := req.URL.Query().Get("token"); q != "" {
		raw = q
	}
	if raw == "" {
		return Principal{}, ErrUnauthorized
	}

	return r.Parse(raw)
}

func (r *Resolver) Parse(raw string) (Principal, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrUnauthorized
	}

	uid, err := uuid.Parse(c.UserID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad userId claim", ErrUnauthorized)
	}
	if c.Role == "" {
		return Principal{}, fmt.Errorf("%w: missing role claim", ErrUnauthorized)
	}

	return Principal{UserID: uid, Role: strings.ToLower(c.Role)}, nil
}
