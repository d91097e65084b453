package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"audiolib/model"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := CheckPasswordHash("s3cret!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPasswordHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordCost(t *testing.T) {
	hash, err := HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	// out of range falls back to the default
	hash, err = HashPassword("s3cret!", 1)
	require.NoError(t, err)
	cost, err = bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestHashPasswordTooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", MaxPasswordBytes+1), bcrypt.MinCost)
	assert.Error(t, err)
}

func TestCheckPasswordHashMalformed(t *testing.T) {
	for _, hash := range []string{"", "not-a-bcrypt-hash", "$2a$04$short"} {
		ok, err := CheckPasswordHash("s3cret!", hash)
		assert.False(t, ok, hash)
		assert.ErrorIs(t, err, ErrMalformedHash, hash)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	tok, err := issuer.GenerateToken(&model.User{ID: 7, Role: model.RoleAdmin})
	require.NoError(t, err)

	claims, err := issuer.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, &model.Identity{ID: 7, Role: model.RoleAdmin}, claims.Identity())
}

func TestParseTokenRejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	tok, err := issuer.GenerateToken(&model.User{ID: 7, Role: model.RoleUser})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenIssuer("other", time.Hour).ParseToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokenIssuer("secret", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.ParseToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 7}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.ParseToken(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.ParseToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
