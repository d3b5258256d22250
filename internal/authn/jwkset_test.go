package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func generateTestKeySet(t *testing.T) (*rsa.PrivateKey, string, *KeySet) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kid := "test-key-1"
	jwk := jose.JSONWebKey{Key: &priv.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}

	raw, err := json.Marshal(set)
	require.NoError(t, err)

	keySet, err := NewKeySet(raw)
	require.NoError(t, err)

	return priv, kid, keySet
}

func signWorkOrderToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims WorkOrderClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestParseWorkOrderTokenValidatesSignatureAndBinding(t *testing.T) {
	priv, kid, keySet := generateTestKeySet(t)

	claims := WorkOrderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type:   WorkOrderDownload,
		FileID: "examplefile001",
	}
	tokenString := signWorkOrderToken(t, priv, kid, claims)

	parsed, err := ParseWorkOrderToken(tokenString, keySet)
	require.NoError(t, err)
	require.True(t, parsed.IsDownload())
	require.True(t, parsed.BoundTo("examplefile001"))
	require.False(t, parsed.BoundTo("other"))
}

func TestParseWorkOrderTokenRejectsExpired(t *testing.T) {
	priv, kid, keySet := generateTestKeySet(t)

	claims := WorkOrderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Type:   WorkOrderDownload,
		FileID: "examplefile001",
	}
	tokenString := signWorkOrderToken(t, priv, kid, claims)

	_, err := ParseWorkOrderToken(tokenString, keySet)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseWorkOrderTokenRejectsUnknownKey(t *testing.T) {
	priv, _, _ := generateTestKeySet(t)
	_, _, otherKeySet := generateTestKeySet(t)

	claims := WorkOrderClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Type:             WorkOrderDownload,
		FileID:           "examplefile001",
	}
	tokenString := signWorkOrderToken(t, priv, "unknown-kid", claims)

	_, err := ParseWorkOrderToken(tokenString, otherKeySet)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseResourceTokenBinding(t *testing.T) {
	priv, kid, keySet := generateTestKeySet(t)

	claims := ResourceClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Scope:            ScopeLockBox,
		ResourceID:       "box-1",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	parsed, err := ParseResourceToken(signed, keySet)
	require.NoError(t, err)
	require.True(t, parsed.BoundTo(ScopeLockBox, "box-1"))
	require.False(t, parsed.BoundTo(ScopeUnlockBox, "box-1"))
}
