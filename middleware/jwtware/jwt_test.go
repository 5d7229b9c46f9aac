package jwtware

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	t.Run("panics without any key source", func(t *testing.T) {
		require.Panics(t, func() {
			GetDefaultConfig()
		})
	})

	t.Run("fills in defaults", func(t *testing.T) {
		cfg := GetDefaultConfig(Config{
			SigningKey: SigningKey{Key: []byte("secret"), JWTAlg: "HS256"},
		})

		assert.Equal(t, "user", cfg.ContextKey)
		assert.Equal(t, "Bearer", cfg.AuthScheme)
		assert.NotEmpty(t, cfg.TokenLookup)
		assert.NotNil(t, cfg.KeyFunc)
		assert.NotNil(t, cfg.SuccessHandler)
		assert.NotNil(t, cfg.ErrorHandler)
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		cfg := GetDefaultConfig(Config{
			SigningKey:      SigningKey{Key: []byte("secret")},
			ContextKey:      "session",
			AuthScheme:      "Token",
			TokenLookup:     "cookie:jwt",
			RequiredPurpose: "session",
		})

		assert.Equal(t, "session", cfg.ContextKey)
		assert.Equal(t, "Token", cfg.AuthScheme)
		assert.Equal(t, "cookie:jwt", cfg.TokenLookup)
		assert.Equal(t, "session", cfg.RequiredPurpose)
	})
}

func TestGetExtractors(t *testing.T) {
	tests := []struct {
		name   string
		lookup string
		count  int
	}{
		{"header only", "header:Authorization", 1},
		{"header and cookie", "header:Authorization,cookie:user", 2},
		{"all sources", "header:Authorization, cookie:jwt, query:auth_token, param:token", 4},
		{"unknown source is skipped", "body:token", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, GetExtractors(tt.lookup), tt.count)
		})
	}
}

func TestCheckPurpose(t *testing.T) {
	makeToken := func(claims jwt.MapClaims) *jwt.Token {
		return &jwt.Token{Claims: claims}
	}

	t.Run("matching purpose", func(t *testing.T) {
		token := makeToken(jwt.MapClaims{"purpose": "session"})
		assert.NoError(t, checkPurpose(token, "session"))
	})

	t.Run("wrong purpose", func(t *testing.T) {
		token := makeToken(jwt.MapClaims{"purpose": "verify"})
		err := checkPurpose(token, "session")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token is malformed")
	})

	t.Run("missing purpose", func(t *testing.T) {
		token := makeToken(jwt.MapClaims{})
		assert.Error(t, checkPurpose(token, "session"))
	})
}

func TestSigningKeyFunc(t *testing.T) {
	key := SigningKey{Key: []byte("secret"), JWTAlg: "HS256"}
	fn := signingKeyFunc(key)

	t.Run("matching algorithm", func(t *testing.T) {
		token := &jwt.Token{Header: map[string]any{"alg": "HS256"}}
		got, err := fn(token)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), got)
	})

	t.Run("mismatched algorithm", func(t *testing.T) {
		token := &jwt.Token{Header: map[string]any{"alg": "RS256"}}
		_, err := fn(token)
		require.Error(t, err)
	})

	t.Run("missing algorithm header", func(t *testing.T) {
		token := &jwt.Token{Header: map[string]any{}}
		_, err := fn(token)
		require.Error(t, err)
	})
}
