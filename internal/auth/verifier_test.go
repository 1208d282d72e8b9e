package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/writique/writique/internal/auth"
)

const testSecret = "test-signing-secret-0123456789"

type tokenOpts struct {
	subject   string
	sessionID string
	expiresAt time.Time
	method    jwt.SigningMethod
	secret    string
}

func signToken(t *testing.T, opts tokenOpts) string {
	t.Helper()

	if opts.method == nil {
		opts.method = jwt.SigningMethodHS256
	}
	if opts.secret == "" {
		opts.secret = testSecret
	}

	claims := jwt.MapClaims{}
	if opts.subject != "" {
		claims["sub"] = opts.subject
	}
	if opts.sessionID != "" {
		claims["sid"] = opts.sessionID
	}
	if !opts.expiresAt.IsZero() {
		claims["exp"] = opts.expiresAt.Unix()
	}

	signed, err := jwt.NewWithClaims(opts.method, claims).SignedString([]byte(opts.secret))
	require.NoError(t, err)
	return signed
}

func TestSessionVerifier_Verify(t *testing.T) {
	verifier, err := auth.NewSessionVerifier(testSecret)
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("valid token yields principal", func(t *testing.T) {
		token := signToken(t, tokenOpts{
			subject:   "user_2abc",
			sessionID: "sess_9xyz",
			expiresAt: time.Now().Add(time.Hour),
		})

		principal, err := verifier.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user_2abc", principal.SubjectID)
		assert.Equal(t, "sess_9xyz", principal.SessionID)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token := signToken(t, tokenOpts{
			subject:   "user_2abc",
			expiresAt: time.Now().Add(-time.Minute),
		})

		_, err := verifier.Verify(ctx, token)
		assert.Error(t, err)
	})

	t.Run("token without expiry rejected", func(t *testing.T) {
		token := signToken(t, tokenOpts{subject: "user_2abc"})

		_, err := verifier.Verify(ctx, token)
		assert.Error(t, err)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token := signToken(t, tokenOpts{
			subject:   "user_2abc",
			expiresAt: time.Now().Add(time.Hour),
			secret:    "a-completely-different-secret",
		})

		_, err := verifier.Verify(ctx, token)
		assert.Error(t, err)
	})

	t.Run("non-HS256 algorithm rejected", func(t *testing.T) {
		token := signToken(t, tokenOpts{
			subject:   "user_2abc",
			expiresAt: time.Now().Add(time.Hour),
			method:    jwt.SigningMethodHS512,
		})

		_, err := verifier.Verify(ctx, token)
		assert.Error(t, err)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		token := signToken(t, tokenOpts{
			expiresAt: time.Now().Add(time.Hour),
		})

		_, err := verifier.Verify(ctx, token)
		assert.Error(t, err)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not.a.jwt")
		assert.Error(t, err)
	})
}

func TestNewSessionVerifier_ShortSecret(t *testing.T) {
	_, err := auth.NewSessionVerifier("short")
	assert.Error(t, err)
}
