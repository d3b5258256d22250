package authn

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// KeySet holds one issuer's JWK set (e.g. a data hub's UOS/WPS issuer, or
// the work-order token issuer) and resolves signing keys by `kid` for
// jwt.Parse's keyfunc.
type KeySet struct {
	mu   sync.RWMutex
	keys jose.JSONWebKeySet
}

// NewKeySet wraps an already-fetched JWK set document.
func NewKeySet(raw []byte) (*KeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("authn: parsing jwk set: %w", err)
	}
	return &KeySet{keys: set}, nil
}

// Replace atomically swaps the held key set, used when a background
// refresh loop re-fetches the issuer's JWKS endpoint.
func (k *KeySet) Replace(raw []byte) error {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return fmt.Errorf("authn: parsing jwk set: %w", err)
	}

	k.mu.Lock()
	k.keys = set
	k.mu.Unlock()
	return nil
}

// Keyfunc resolves the signing key named by the token's `kid` header,
// satisfying jwt.Keyfunc.
func (k *KeySet) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)

	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, candidate := range k.keys.Key(kid) {
		if key, ok := candidate.Key.(*rsa.PublicKey); ok {
			return key, nil
		}
		return candidate.Key, nil
	}

	return nil, ErrUnknownKey
}

// ParseWorkOrderToken validates tokenString against keys and returns its
// claims. Rejects tokens that are not of type "download" is left to the
// caller via (*WorkOrderClaims).IsDownload, matching how every other
// claim-shape check in this package is caller-driven rather than baked
// into parsing.
func ParseWorkOrderToken(tokenString string, keys *KeySet) (*WorkOrderClaims, error) {
	claims := &WorkOrderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}))
	return claims, classifyParseError(token, err)
}

// ParseResourceToken validates tokenString against keys and returns its
// UOS/WPS resource-scoped claims.
func ParseResourceToken(tokenString string, keys *KeySet) (*ResourceClaims, error) {
	claims := &ResourceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}))
	return claims, classifyParseError(token, err)
}

func classifyParseError(token *jwt.Token, err error) error {
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if token == nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
