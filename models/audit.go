package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// SystemEventTypeENUMType system event type ENUM value type
type SystemEventTypeENUMType string

const (
	// SystemEventTypeInitializing system is being initialized
	SystemEventTypeInitializing SystemEventTypeENUMType = "SYSTEM_INITIALIZING"

	// SystemEventTypeInitialized system is initialized
	SystemEventTypeInitialized SystemEventTypeENUMType = "SYSTEM_INITIALIZED"

	// SystemEventTypeCreateAPIKey new API key is being created
	SystemEventTypeCreateAPIKey SystemEventTypeENUMType = "CREATE_API_KEY"

	// SystemEventTypeUpdateAPIKey API key metadata is being updated
	SystemEventTypeUpdateAPIKey SystemEventTypeENUMType = "UPDATE_API_KEY"

	// SystemEventTypeRotateAPIKey API key secret is being rotated
	SystemEventTypeRotateAPIKey SystemEventTypeENUMType = "ROTATE_API_KEY"

	// SystemEventTypeDeleteAPIKey API key is deleted
	SystemEventTypeDeleteAPIKey SystemEventTypeENUMType = "DELETE_API_KEY"
)

// SystemEventAudit recording of events occurring at the system level
type SystemEventAudit struct {
	// ID audit entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// EventType system event type
	EventType SystemEventTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,system_event_type"`
	// Metadata a metadata relating to the event
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseMetadata parse the metadata based on the event type
func (a SystemEventAudit) ParseMetadata(validator *validator.Validate) (interface{}, error) {
	switch a.EventType {
	// API key related system audit events
	case SystemEventTypeCreateAPIKey:
		fallthrough
	case SystemEventTypeUpdateAPIKey:
		fallthrough
	case SystemEventTypeRotateAPIKey:
		fallthrough
	case SystemEventTypeDeleteAPIKey:
		var parsed SystemEventAPIKeyRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)
	}
	return nil, nil
}

// SystemEventAPIKeyRelated system event metadata related to an API key
type SystemEventAPIKeyRelated struct {
	// KeyID the API key ID
	KeyID string `json:"key_id" validate:"required,uuid_rfc4122"`
	// KeyName the API key name
	KeyName string `json:"key_name" validate:"required"`
}
