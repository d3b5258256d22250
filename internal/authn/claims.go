// Package authn validates the two JWT families the pipeline's REST edges
// accept: work-order tokens (file_id-bound, issued for a single download)
// and UOS/WPS tokens (resource-bound box/file operation tokens), both
// verified against a configured JWK set rather than a shared HMAC secret.
package authn

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Common validation errors (invalid/expired/wrong-type token).
var (
	ErrInvalidToken     = errors.New("authn: invalid token")
	ErrExpiredToken     = errors.New("authn: token has expired")
	ErrInvalidTokenType = errors.New("authn: unexpected token type")
	ErrUnknownKey       = errors.New("authn: no matching key in jwk set")
)

// WorkOrderType is the `type` claim a DCS work-order token carries.
type WorkOrderType string

const (
	WorkOrderDownload WorkOrderType = "download"
)

// WorkOrderClaims are the claims carried by a DCS download work-order
// token: `{type, file_id, user_public_crypt4gh_key, iat, exp}`.
type WorkOrderClaims struct {
	jwt.RegisteredClaims

	Type                  WorkOrderType `json:"type"`
	FileID                string        `json:"file_id"`
	UserPublicCrypt4GHKey string        `json:"user_public_crypt4gh_key"`
}

// IsDownload reports whether this token authorizes a download.
func (c *WorkOrderClaims) IsDownload() bool {
	return c.Type == WorkOrderDownload
}

// BoundTo reports whether the token's file_id claim matches fileID,
// implementing the path-binding check every DRS endpoint requires.
func (c *WorkOrderClaims) BoundTo(fileID string) bool {
	return c.FileID == fileID
}

// ResourceScope is the operation a UOS/WPS token authorizes.
type ResourceScope string

const (
	ScopeCreateBox ResourceScope = "box:create"
	ScopeViewBox   ResourceScope = "box:view"
	ScopeLockBox   ResourceScope = "box:lock"
	ScopeUnlockBox ResourceScope = "box:unlock"

	ScopeCreateUpload ResourceScope = "upload:create"
	ScopeUploadPart   ResourceScope = "upload:part"
	ScopeCloseUpload  ResourceScope = "upload:close"
	ScopeDeleteUpload ResourceScope = "upload:delete"
)

// ResourceClaims are the claims carried by a UOS (upload-operation-scoped
// box token) or WPS (work-package-scoped file token), each binding one
// specific resource id to one scope.
type ResourceClaims struct {
	jwt.RegisteredClaims

	Scope      ResourceScope `json:"scope"`
	ResourceID string        `json:"resource_id"`
}

// BoundTo reports whether the token authorizes scope against resourceID.
func (c *ResourceClaims) BoundTo(scope ResourceScope, resourceID string) bool {
	return c.Scope == scope && c.ResourceID == resourceID
}

// IngestClaims are the claims carried by a data hub's ingest token: one
// key pair per hub (the `data_hub_auth_keys` model), scoped to the hub
// rather than to any single resource, so every ingest/interrogation call
// from that hub validates against the same claim shape.
type IngestClaims struct {
	jwt.RegisteredClaims

	DataHub string `json:"data_hub"`
}

// BoundTo reports whether the token was issued for dataHub.
func (c *IngestClaims) BoundTo(dataHub string) bool {
	return c.DataHub == dataHub
}

// ParseIngestToken validates tokenString against keys (the issuing data
// hub's own JWK set) and returns its claims.
func ParseIngestToken(tokenString string, keys *KeySet) (*IngestClaims, error) {
	claims := &IngestClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}))
	return claims, classifyParseError(token, err)
}
