package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.WithinDuration(t, time.Now(), id.IssuedAt, 5*time.Second)
}

func TestVerifyFailures(t *testing.T) {
	v := NewVerifier("secret")

	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrMissingCredential)

	other, err := NewVerifier("other").GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	expired, err := v.GenerateToken("alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = v.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: "alice", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRequiresUserID(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.GenerateToken("", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=xyz", nil)
	assert.Equal(t, "xyz", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/conversations", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(r))
}
