package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/testutil"
	"github.com/hugh/schoolhub/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(role models.Role) *models.User {
	return &models.User{Base: models.Base{ID: uuid.New()}, Email: "test@school.test", Role: role}
}

func TestJWTService_GenerateToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
	user := testUser(models.RoleTeacher)

	t.Run("generates valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(user)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, models.RoleTeacher, claims.Role)
		assert.Equal(t, auth.PurposeAccess, claims.Purpose)
	})

	t.Run("token contains issuer and subject", func(t *testing.T) {
		token, err := jwtService.GenerateToken(user)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "schoolhub", claims.Issuer)
		assert.Equal(t, user.ID.String(), claims.Subject)
		assert.False(t, claims.IssuedAt().IsZero())
	})
}

func TestJWTService_Expiry(t *testing.T) {
	clock := testutil.NewClock()
	ttl := time.Hour
	jwtService := auth.NewJWTService("test-secret", ttl, auth.WithClock(clock.Now))

	token, err := jwtService.GenerateToken(testUser(models.RoleAdmin))
	require.NoError(t, err)

	clock.Advance(ttl - time.Second)
	_, err = jwtService.ValidateToken(token)
	assert.NoError(t, err, "valid just before the TTL elapses")

	clock.Advance(time.Second)
	_, err = jwtService.ValidateToken(token)
	assert.Equal(t, auth.ErrExpiredToken, err, "expired once the TTL has elapsed")

	clock.Advance(time.Hour)
	_, err = jwtService.ValidateToken(token)
	assert.Equal(t, auth.ErrExpiredToken, err)
}

func TestJWTService_ExpiryAtSubSecondIssue(t *testing.T) {
	clock := testutil.NewClockAt(time.Date(2024, 9, 2, 8, 0, 0, 700_000_000, time.UTC))
	ttl := 10 * time.Second
	jwtService := auth.NewJWTService("test-secret", ttl, auth.WithClock(clock.Now))

	token, err := jwtService.GenerateToken(testUser(models.RoleStudent))
	require.NoError(t, err)
	ephemeral, err := jwtService.IssueEphemeral(auth.PurposeSignup, map[string]string{"a": "b"}, ttl)
	require.NoError(t, err)

	clock.Advance(9500 * time.Millisecond)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err, "valid while elapsed < TTL")
	assert.Equal(t, time.Date(2024, 9, 2, 8, 0, 0, 700_000_000, time.UTC), claims.IssuedAt().UTC())
	var out map[string]string
	assert.NoError(t, jwtService.VerifyEphemeral(ephemeral, auth.PurposeSignup, &out))

	clock.Advance(499 * time.Millisecond)
	_, err = jwtService.ValidateToken(token)
	assert.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = jwtService.ValidateToken(token)
	assert.Equal(t, auth.ErrExpiredToken, err)
	assert.Equal(t, auth.ErrExpiredToken, jwtService.VerifyEphemeral(ephemeral, auth.PurposeSignup, &out))
}

func TestJWTService_ValidateToken(t *testing.T) {
	user := testUser(models.RoleAdmin)

	t.Run("rejects tampered token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(user)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token + "tampered")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects token signed with different secret", func(t *testing.T) {
		jwtService1 := auth.NewJWTService("secret-1", 24*time.Hour)
		jwtService2 := auth.NewJWTService("secret-2", 24*time.Hour)

		token, err := jwtService1.GenerateToken(user)
		require.NoError(t, err)

		_, err = jwtService2.ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects none algorithm", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
			UserID:  user.ID,
			Purpose: auth.PurposeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "schoolhub",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects ephemeral token as access token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.IssueEphemeral(auth.PurposeSignup, map[string]string{"a": "b"}, time.Minute)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects malformed and empty tokens", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		_, err := jwtService.ValidateToken("not-a-valid-jwt")
		assert.Equal(t, auth.ErrInvalidToken, err)

		_, err = jwtService.ValidateToken("")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
}

func TestJWTService_Ephemeral(t *testing.T) {
	clock := testutil.NewClock()
	enc, err := crypto.NewEncryptor("")
	require.NoError(t, err)
	jwtService := auth.NewJWTService("test-secret", time.Hour, auth.WithClock(clock.Now), auth.WithSealer(enc))

	type payload struct {
		Email     string `json:"email"`
		NonceHash string `json:"nonce_hash"`
	}
	in := payload{Email: "new@school.test", NonceHash: crypto.HashToken("nonce")}

	token, err := jwtService.IssueEphemeral(auth.PurposeSignup, in, 10*time.Minute)
	require.NoError(t, err)

	t.Run("payload is not readable from the token", func(t *testing.T) {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, &auth.Claims{})
		require.NoError(t, err)
		claims := parsed.Claims.(*auth.Claims)
		assert.NotEmpty(t, claims.Sealed)
		assert.NotContains(t, claims.Sealed, "new@school.test")
	})

	t.Run("round trip", func(t *testing.T) {
		var out payload
		require.NoError(t, jwtService.VerifyEphemeral(token, auth.PurposeSignup, &out))
		assert.Equal(t, in, out)
	})

	t.Run("wrong purpose", func(t *testing.T) {
		var out payload
		assert.Equal(t, auth.ErrInvalidToken, jwtService.VerifyEphemeral(token, "password_reset", &out))
	})

	t.Run("other sealing identity", func(t *testing.T) {
		other := auth.NewJWTService("test-secret", time.Hour, auth.WithClock(clock.Now))
		var out payload
		assert.Equal(t, auth.ErrInvalidToken, other.VerifyEphemeral(token, auth.PurposeSignup, &out))
	})

	t.Run("expires after ttl", func(t *testing.T) {
		clock.Advance(10 * time.Minute)
		var out payload
		assert.Equal(t, auth.ErrExpiredToken, jwtService.VerifyEphemeral(token, auth.PurposeSignup, &out))
	})
}

func TestJWTService_DifferentRoles(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	for _, role := range []models.Role{models.RoleAdmin, models.RoleTeacher, models.RoleStudent} {
		t.Run("handles "+string(role)+" role", func(t *testing.T) {
			token, err := jwtService.GenerateToken(testUser(role))
			require.NoError(t, err)

			claims, err := jwtService.ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, role, claims.Role)
		})
	}
}

func TestPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, auth.CheckPassword("correct horse", hash))
	assert.False(t, auth.CheckPassword("battery staple", hash))

	_, err = auth.HashPassword("")
	assert.ErrorIs(t, err, auth.ErrEmptyPassword)
}
