package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := NewService(Config{
		Secret:        "test-secret",
		TokenDuration: time.Hour,
		AdminUser:     "admin",
		AdminPassword: "swordfish",
	})
	require.NoError(t, err)
	return svc
}

func TestService_RequiresSecretAndPassword(t *testing.T) {
	_, err := NewService(Config{AdminUser: "admin", AdminPassword: "x"})
	assert.Error(t, err)

	_, err = NewService(Config{Secret: "s", AdminUser: "admin"})
	assert.Error(t, err)
}

func TestService_AuthenticateRoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Authenticate("admin", "swordfish")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestService_RejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate("root", "swordfish")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RejectsTamperedToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Authenticate("admin", "swordfish")
	require.NoError(t, err)

	_, err = svc.ParseToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RejectsTokenFromOtherSecret(t *testing.T) {
	svc := newTestService(t)

	other, err := NewService(Config{
		Secret:        "different-secret",
		AdminUser:     "admin",
		AdminPassword: "swordfish",
	})
	require.NoError(t, err)

	token, err := other.Authenticate("admin", "swordfish")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RejectsExpiredToken(t *testing.T) {
	svc := newTestService(t)

	claims := Claims{
		Username: "admin",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_AcceptsPrehashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	require.NoError(t, err)

	svc, err := NewService(Config{
		Secret:        "test-secret",
		AdminUser:     "admin",
		AdminPassword: string(hash),
	})
	require.NoError(t, err)

	_, err = svc.Authenticate("admin", "swordfish")
	assert.NoError(t, err)
}
