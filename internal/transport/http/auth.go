package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type ctxKey int

const claimsKey ctxKey = iota

// RoleAdmin is the role claim that may read leaderboards and issue test codes.
const RoleAdmin = "admin"

// Claims is the payload of tokens issued by the auth service.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// BearerAuth verifies HS256 bearer tokens and exposes the userId claim to handlers.
type BearerAuth struct {
	secret []byte
}

func NewBearerAuth(secret string) *BearerAuth {
	return &BearerAuth{secret: []byte(secret)}
}

// Wrap rejects requests without a valid token.
func (a *BearerAuth) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Access denied. No token provided.")
			return
		}
		claims, err := a.parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// Admin is Wrap plus a role check; other roles get 403.
func (a *BearerAuth) Admin(next http.HandlerFunc) http.HandlerFunc {
	return a.Wrap(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r.Context()).Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "Access denied. Admin role required.")
			return
		}
		next(w, r)
	})
}

func (a *BearerAuth) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no userId claim")
	}
	return claims, nil
}

// Sign issues a token for userID. Production tokens come from the auth
// service; this exists for tooling and tests sharing the same secret.
func (a *BearerAuth) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func claimsFrom(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsKey).(*Claims); ok {
		return claims
	}
	return &Claims{}
}

func userIDFrom(ctx context.Context) string {
	return claimsFrom(ctx).UserID
}
