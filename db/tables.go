package db

import "github.com/VishalKumar-S/zenml/models"

// --------------------------------------------------------------------------------------
// System audit events

// SystemEventAuditDBEntry system audit event DB entry
type SystemEventAuditDBEntry struct {
	models.SystemEventAudit
}

// TableName hard code table name
func (SystemEventAuditDBEntry) TableName() string {
	return "system_audit_events"
}

// --------------------------------------------------------------------------------------
// System parameters

// SystemParamsDBEntry system parameter DB entry
type SystemParamsDBEntry struct {
	models.SystemParams
}

// TableName hard code table name
func (SystemParamsDBEntry) TableName() string {
	return "system_params"
}

// --------------------------------------------------------------------------------------
// API keys

// APIKeyDBEntry API key DB entry
type APIKeyDBEntry struct {
	models.APIKey
}

// TableName hard code table name
func (APIKeyDBEntry) TableName() string {
	return "api_keys"
}
