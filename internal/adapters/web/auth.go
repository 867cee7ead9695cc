package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inventory-engine/internal/app"
)

type identityKey struct{}

// identityFromContext returns the caller stored by RequireAuth, or nil.
func identityFromContext(ctx context.Context) *app.Identity {
	v, _ := ctx.Value(identityKey{}).(*app.Identity)
	return v
}

// jwtClaims is the JWT payload. The subject carries the user ID.
type jwtClaims struct {
	Role   string `json:"role"`
	ShopID *int   `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for id, valid for ttl.
func IssueToken(secret string, id app.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &jwtClaims{
		Role:   string(id.Role),
		ShopID: id.ShopID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates raw and returns the identity it carries.
func ParseToken(secret, raw string) (*app.Identity, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &app.Identity{
		UserID: claims.Subject,
		Role:   app.Role(claims.Role),
		ShopID: claims.ShopID,
	}, nil
}

// bearerToken reads the token from the Authorization header, falling back to the
// auth_token cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth validates the caller's token and injects the identity into the
// request context. Returns 401 if the token is absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		id, err := ParseToken(h.jwtSecret, raw)
		if err != nil {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// me handles GET /api/auth/me.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	type meResponse struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
		ShopID *int   `json:"shop_id,omitempty"`
	}
	writeJSON(w, meResponse{UserID: id.UserID, Role: string(id.Role), ShopID: id.ShopID})
}
