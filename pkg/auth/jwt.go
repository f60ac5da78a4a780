package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Identity is what the gate attaches to an authenticated request or socket.
type Identity struct {
	UserID   string
	IssuedAt time.Time
}

type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		key: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks signature and expiry of a raw token.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingCredential
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidCredential
	}
	if claims.UserID == "" {
		return Identity{}, ErrInvalidCredential
	}

	id := Identity{UserID: claims.UserID}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	return id, nil
}

// GenerateToken mints a token for userID. Production tokens come from the
// platform's auth service; this exists for scripts, the CLI client and tests.
func (v *Verifier) GenerateToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}

// BearerToken extracts the token from the Authorization header, falling
// back to the token query parameter used by websocket clients.
func BearerToken(r *http.Request) string {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		return r.URL.Query().Get("token")
	}
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "Bearer ") {
		return strings.TrimSpace(tokenString[7:])
	}
	return ""
}
