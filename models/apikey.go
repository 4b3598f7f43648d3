package models

import "time"

// APIKey the canonical API key record.
//
// This is the internal projection of an API key; the hash slots must never
// leave the service boundary. External callers only ever see APIKeyInfo.
type APIKey struct {
	// ID API key ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`

	// Name API key name, unique within the owning scope
	Name string `json:"name" gorm:"column:name;not null;uniqueIndex:idx_api_key_scope_name" validate:"required"`

	// Description free form description of the API key
	Description string `json:"description" gorm:"column:description"`

	// KeyHash one-way hash of the active secret
	KeyHash string `json:"-" gorm:"column:key_hash;not null" validate:"required"`

	// PreviousKeyHash one-way hash of the secret superseded by the last
	// rotation, if any
	PreviousKeyHash *string `json:"-" gorm:"column:previous_key_hash;default:null"`

	// RetainPeriod duration after the last rotation during which the previous
	// secret still verifies
	RetainPeriod time.Duration `json:"retain_period" gorm:"column:retain_period;not null;default:0" validate:"gte=0"`

	// Active whether the API key can be used to authenticate
	Active bool `json:"active" gorm:"column:active;not null"`

	// LastUsed when the API key last passed verification
	LastUsed time.Time `json:"last_used" gorm:"column:last_used;not null"`
	// LastRotated when the API key secret was last rotated
	LastRotated time.Time `json:"last_rotated" gorm:"column:last_rotated;not null"`

	// OwnerID the user which owns this API key
	OwnerID string `json:"owner_id" gorm:"column:owner_id;not null" validate:"required,uuid_rfc4122"`
	// ScopeID the workspace this API key belongs to
	ScopeID string `json:"scope_id" gorm:"column:scope_id;not null;uniqueIndex:idx_api_key_scope_name" validate:"required,uuid_rfc4122"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// APIKeyInfo the public projection of an API key. It carries no hash material.
type APIKeyInfo struct {
	// ID API key ID
	ID string `json:"id"`
	// Name API key name
	Name string `json:"name"`
	// Description free form description of the API key
	Description string `json:"description"`
	// Key the encoded credential token. Only set on the response of a create
	// or rotate call; never recoverable afterward.
	Key string `json:"key,omitempty"`
	// Active whether the API key can be used to authenticate
	Active bool `json:"active"`
	// RetainPeriod grace window for the previous secret
	RetainPeriod time.Duration `json:"retain_period"`
	// LastUsed when the API key last passed verification
	LastUsed time.Time `json:"last_used"`
	// LastRotated when the API key secret was last rotated
	LastRotated time.Time `json:"last_rotated"`
	// OwnerID the user which owns this API key
	OwnerID string `json:"owner_id"`
	// ScopeID the workspace this API key belongs to
	ScopeID string `json:"scope_id"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

/*
Info project the record into its public form.

The projection is rebuilt field by field on purpose. The hash slots stay
behind, and there is no embedded type a serializer could accidentally widen.

	@returns public projection of this API key
*/
func (k APIKey) Info() APIKeyInfo {
	return APIKeyInfo{
		ID:           k.ID,
		Name:         k.Name,
		Description:  k.Description,
		Active:       k.Active,
		RetainPeriod: k.RetainPeriod,
		LastUsed:     k.LastUsed,
		LastRotated:  k.LastRotated,
		OwnerID:      k.OwnerID,
		ScopeID:      k.ScopeID,
		CreatedAt:    k.CreatedAt,
		UpdatedAt:    k.UpdatedAt,
	}
}

// APIKeyRequest parameters for defining a new API key
type APIKeyRequest struct {
	// Name API key name, unique within the owning scope
	Name string `json:"name" validate:"required"`
	// Description free form description of the API key
	Description string `json:"description"`
	// OwnerID the user which owns this API key
	OwnerID string `json:"owner_id" validate:"required,uuid_rfc4122"`
	// ScopeID the workspace this API key belongs to
	ScopeID string `json:"scope_id" validate:"required,uuid_rfc4122"`
}

// APIKeyUpdate parameters for updating an API key. Nil fields are left
// untouched.
type APIKeyUpdate struct {
	// Name change the API key name
	Name *string `json:"name,omitempty"`
	// Description change the API key description
	Description *string `json:"description,omitempty"`
	// Active activate or deactivate the API key
	Active *bool `json:"active,omitempty"`
}
