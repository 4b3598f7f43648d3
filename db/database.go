package db

import (
	"context"
	"fmt"
	"time"

	"github.com/VishalKumar-S/zenml/models"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// CommonListEntryQueryFilter common query filter when listing data entries
type CommonListEntryQueryFilter struct {
	Limit  *int
	Offset *int
}

// SystemEventQueryFilter audit event query filter conditions
type SystemEventQueryFilter struct {
	CommonListEntryQueryFilter
	// EventTypes the specific event types to query for
	EventTypes []models.SystemEventTypeENUMType
	// EventsAfter filter for events after this timestamp
	EventsAfter *time.Time
	// EventsBefore filter for events before this timestamp
	EventsBefore *time.Time
}

// APIKeyQueryFilter API key query filter conditions
type APIKeyQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetName fetch only API keys with this name
	TargetName *string
	// TargetScopeID fetch only API keys belonging to this scope
	TargetScopeID *string
	// TargetOwnerID fetch only API keys owned by this user
	TargetOwnerID *string
	// TargetActive fetch only API keys with this active state
	TargetActive *bool
}

// Database the database handle for interacting with the database
type Database interface {
	// ------------------------------------------------------------------------------------
	// System audit events

	/*
		ListSystemEvents list captured system events

			@param ctx context.Context - execution context
			@param filters SystemEventQueryFilter - entry listing filter
			@return list of system events
	*/
	ListSystemEvents(
		ctx context.Context, filters SystemEventQueryFilter,
	) ([]models.SystemEventAudit, error)

	// ------------------------------------------------------------------------------------
	// System parameters

	/*
		GetSystemParamEntry fetch the global singleton system parameter entry

			@param ctx context.Context - execution context
			@returns the entry
	*/
	GetSystemParamEntry(ctx context.Context) (models.SystemParams, error)

	/*
		MarkSystemInitializing mark system is initializing

			@param ctx context.Context - execution context
	*/
	MarkSystemInitializing(ctx context.Context) error

	/*
		MarkSystemInitialized mark system fully initialized

			@param ctx context.Context - execution context
	*/
	MarkSystemInitialized(ctx context.Context) error

	// ------------------------------------------------------------------------------------
	// API keys

	/*
		DefineNewAPIKey define new API key record

		The caller provides the hash of the generated secret; the raw secret
		itself never reaches the persistence layer.

			@param ctx context.Context - execution context
			@param request models.APIKeyRequest - API key creation parameters
			@param keyHash string - hash of the generated secret
			@param timestamp time.Time - creation timestamp
			@returns the API key entry
	*/
	DefineNewAPIKey(
		ctx context.Context, request models.APIKeyRequest, keyHash string, timestamp time.Time,
	) (models.APIKey, error)

	/*
		GetAPIKey fetch an API key by ID

			@param ctx context.Context - execution context
			@param keyID string - API key ID
			@returns the API key entry
	*/
	GetAPIKey(ctx context.Context, keyID string) (models.APIKey, error)

	/*
		GetAPIKeyByName fetch an API key by name within a scope

			@param ctx context.Context - execution context
			@param scopeID string - the owning scope
			@param name string - API key name
			@returns the API key entry
	*/
	GetAPIKeyByName(ctx context.Context, scopeID string, name string) (models.APIKey, error)

	/*
		ListAPIKeys list API keys

			@param ctx context.Context - execution context
			@param filters APIKeyQueryFilter - entry listing filter
			@return list of API keys
	*/
	ListAPIKeys(ctx context.Context, filters APIKeyQueryFilter) ([]models.APIKey, error)

	/*
		UpdateAPIKey update an API key's mutable metadata

		Only non-nil fields of the update are applied. The hash slots and the
		last used / last rotated timestamps are never touched here.

			@param ctx context.Context - execution context
			@param keyID string - API key ID
			@param update models.APIKeyUpdate - fields to change
			@returns the updated API key entry
	*/
	UpdateAPIKey(
		ctx context.Context, keyID string, update models.APIKeyUpdate,
	) (models.APIKey, error)

	/*
		RotateAPIKeyHash install a new secret hash on an API key

		The active hash moves into the previous slot in the same row update,
		so a concurrent reader sees either the pre- or post-rotation record.

			@param ctx context.Context - execution context
			@param keyID string - API key ID
			@param newHash string - hash of the new secret
			@param retainPeriod time.Duration - grace window for the previous secret
			@param timestamp time.Time - rotation timestamp
			@returns the updated API key entry
	*/
	RotateAPIKeyHash(
		ctx context.Context,
		keyID string,
		newHash string,
		retainPeriod time.Duration,
		timestamp time.Time,
	) (models.APIKey, error)

	/*
		MarkAPIKeyUsed set the last used timestamp of an API key

			@param ctx context.Context - execution context
			@param keyID string - API key ID
			@param timestamp time.Time - when the key was used
	*/
	MarkAPIKeyUsed(ctx context.Context, keyID string, timestamp time.Time) error

	/*
		DeleteAPIKey delete an API key

			@param ctx context.Context - execution context
			@param keyID string - API key ID
	*/
	DeleteAPIKey(ctx context.Context, keyID string) error
}

// databaseImpl implements Database
type databaseImpl struct {
	goutils.Component
	db        *gorm.DB
	validator *validator.Validate
}

// newDatabase define a new database client
func newDatabase(_ context.Context, sqlClient *gorm.DB) (Database, error) {
	logTags := log.Fields{"package": "zenml", "module": "db", "component": "db-client"}

	instance := &databaseImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db:        sqlClient,
		validator: validator.New(),
	}

	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}
