package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VishalKumar-S/zenml/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

/*
DefineNewAPIKey define new API key record

	@param ctx context.Context - execution context
	@param request models.APIKeyRequest - API key creation parameters
	@param keyHash string - hash of the generated secret
	@param timestamp time.Time - creation timestamp
	@returns the API key entry
*/
func (d *databaseImpl) DefineNewAPIKey(
	_ context.Context, request models.APIKeyRequest, keyHash string, timestamp time.Time,
) (models.APIKey, error) {
	if err := d.validator.Struct(&request); err != nil {
		return models.APIKey{}, fmt.Errorf(
			"new API key '%s' request is not valid [%w]", request.Name, err,
		)
	}

	// The unique index on (scope_id, name) is the backstop, but checking
	// first inside the transaction lets the caller see a clean conflict error
	// rather than a driver specific constraint failure.
	var existing []APIKeyDBEntry
	if tmp := d.db.Where(
		"scope_id = ? AND name = ?", request.ScopeID, request.Name,
	).Find(&existing); tmp.Error != nil {
		return models.APIKey{}, fmt.Errorf(
			"uniqueness check for API key '%s' failed [%w]", request.Name, tmp.Error,
		)
	}
	if len(existing) > 0 {
		return models.APIKey{}, fmt.Errorf(
			"API key '%s' in scope %s [%w]", request.Name, request.ScopeID, models.ErrAlreadyExists,
		)
	}

	newEntry := APIKeyDBEntry{
		APIKey: models.APIKey{
			ID:          uuid.NewString(),
			Name:        request.Name,
			Description: request.Description,
			KeyHash:     keyHash,
			Active:      true,
			LastUsed:    timestamp,
			LastRotated: timestamp,
			OwnerID:     request.OwnerID,
			ScopeID:     request.ScopeID,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.APIKey{}, fmt.Errorf(
			"new API key '%s' is not valid [%w]", request.Name, err,
		)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.APIKey{}, fmt.Errorf(
			"new API key '%s' failed insert [%w]", request.Name, tmp.Error,
		)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeCreateAPIKey,
		models.SystemEventAPIKeyRelated{KeyID: newEntry.ID, KeyName: newEntry.Name},
	); err != nil {
		return models.APIKey{}, fmt.Errorf(
			"failed to log create API key '%s' audit event [%w]", request.Name, err,
		)
	}

	return newEntry.APIKey, nil
}

// getAPIKeyEntry find an API key by ID
func (d *databaseImpl) getAPIKeyEntry(keyID string) (APIKeyDBEntry, error) {
	var entry APIKeyDBEntry
	err := d.db.Where("id = ?", keyID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entry, fmt.Errorf("API key %s [%w]", keyID, models.ErrNotFound)
	}
	return entry, err
}

/*
GetAPIKey fetch an API key by ID

	@param ctx context.Context - execution context
	@param keyID string - API key ID
	@returns the API key entry
*/
func (d *databaseImpl) GetAPIKey(_ context.Context, keyID string) (models.APIKey, error) {
	entry, err := d.getAPIKeyEntry(keyID)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}

	return entry.APIKey, nil
}

/*
GetAPIKeyByName fetch an API key by name within a scope

	@param ctx context.Context - execution context
	@param scopeID string - the owning scope
	@param name string - API key name
	@returns the API key entry
*/
func (d *databaseImpl) GetAPIKeyByName(
	_ context.Context, scopeID string, name string,
) (models.APIKey, error) {
	var entry APIKeyDBEntry
	err := d.db.Where("scope_id = ? AND name = ?", scopeID, name).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.APIKey{}, fmt.Errorf("API key '%s' [%w]", name, models.ErrNotFound)
	}
	if err != nil {
		return models.APIKey{}, fmt.Errorf("failed to fetch API key '%s' [%w]", name, err)
	}

	return entry.APIKey, nil
}

/*
ListAPIKeys list API keys

	@param ctx context.Context - execution context
	@param filters APIKeyQueryFilter - entry listing filter
	@return list of API keys
*/
func (d *databaseImpl) ListAPIKeys(
	_ context.Context, filters APIKeyQueryFilter,
) ([]models.APIKey, error) {
	query := d.db.Model(&APIKeyDBEntry{})

	if filters.TargetName != nil {
		query = query.Where("name = ?", *filters.TargetName)
	}
	if filters.TargetScopeID != nil {
		query = query.Where("scope_id = ?", *filters.TargetScopeID)
	}
	if filters.TargetOwnerID != nil {
		query = query.Where("owner_id = ?", *filters.TargetOwnerID)
	}
	if filters.TargetActive != nil {
		query = query.Where("active = ?", *filters.TargetActive)
	}

	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}

	query = query.Order("created_at desc")

	var entries []APIKeyDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list API keys [%w]", tmp.Error)
	}

	result := []models.APIKey{}
	for _, entry := range entries {
		result = append(result, entry.APIKey)
	}

	return result, nil
}

/*
UpdateAPIKey update an API key's mutable metadata

	@param ctx context.Context - execution context
	@param keyID string - API key ID
	@param update models.APIKeyUpdate - fields to change
	@returns the updated API key entry
*/
func (d *databaseImpl) UpdateAPIKey(
	_ context.Context, keyID string, update models.APIKeyUpdate,
) (models.APIKey, error) {
	entry, err := d.getAPIKeyEntry(keyID)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}

	// Map based update so a change to `false` or `""` is not dropped as a
	// zero value.
	changes := map[string]interface{}{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.Description != nil {
		changes["description"] = *update.Description
	}
	if update.Active != nil {
		changes["active"] = *update.Active
	}

	if len(changes) > 0 {
		if tmp := d.db.Model(&entry).Updates(changes); tmp.Error != nil {
			return models.APIKey{}, fmt.Errorf(
				"failed to update API key %s [%w]", keyID, tmp.Error,
			)
		}
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeUpdateAPIKey,
		models.SystemEventAPIKeyRelated{KeyID: entry.ID, KeyName: entry.Name},
	); err != nil {
		return models.APIKey{}, fmt.Errorf(
			"failed to log update API key '%s' audit event [%w]", entry.Name, err,
		)
	}

	entry, err = d.getAPIKeyEntry(keyID)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}
	return entry.APIKey, nil
}

/*
RotateAPIKeyHash install a new secret hash on an API key

	@param ctx context.Context - execution context
	@param keyID string - API key ID
	@param newHash string - hash of the new secret
	@param retainPeriod time.Duration - grace window for the previous secret
	@param timestamp time.Time - rotation timestamp
	@returns the updated API key entry
*/
func (d *databaseImpl) RotateAPIKeyHash(
	_ context.Context,
	keyID string,
	newHash string,
	retainPeriod time.Duration,
	timestamp time.Time,
) (models.APIKey, error) {
	entry, err := d.getAPIKeyEntry(keyID)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}

	// One row update moves the active hash into the previous slot and
	// installs the new hash. A reader sees either the old or the new row.
	changes := map[string]interface{}{
		"previous_key_hash": entry.KeyHash,
		"key_hash":          newHash,
		"retain_period":     retainPeriod,
		"last_rotated":      timestamp,
	}
	if tmp := d.db.Model(&entry).Updates(changes); tmp.Error != nil {
		return models.APIKey{}, fmt.Errorf(
			"failed to rotate API key %s [%w]", keyID, tmp.Error,
		)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeRotateAPIKey,
		models.SystemEventAPIKeyRelated{KeyID: entry.ID, KeyName: entry.Name},
	); err != nil {
		return models.APIKey{}, fmt.Errorf(
			"failed to log rotate API key '%s' audit event [%w]", entry.Name, err,
		)
	}

	entry, err = d.getAPIKeyEntry(keyID)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}
	return entry.APIKey, nil
}

/*
MarkAPIKeyUsed set the last used timestamp of an API key

	@param ctx context.Context - execution context
	@param keyID string - API key ID
	@param timestamp time.Time - when the key was used
*/
func (d *databaseImpl) MarkAPIKeyUsed(
	_ context.Context, keyID string, timestamp time.Time,
) error {
	entry, err := d.getAPIKeyEntry(keyID)
	if err != nil {
		return fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}

	changes := map[string]interface{}{"last_used": timestamp}
	if tmp := d.db.Model(&entry).Updates(changes); tmp.Error != nil {
		return fmt.Errorf("failed to mark API key %s used [%w]", keyID, tmp.Error)
	}

	return nil
}

/*
DeleteAPIKey delete an API key

	@param ctx context.Context - execution context
	@param keyID string - API key ID
*/
func (d *databaseImpl) DeleteAPIKey(_ context.Context, keyID string) error {
	entry, err := d.getAPIKeyEntry(keyID)
	if err != nil {
		return fmt.Errorf("failed to fetch API key %s [%w]", keyID, err)
	}

	if tmp := d.db.Delete(&entry); tmp.Error != nil {
		return fmt.Errorf("failed to delete API key %s [%w]", keyID, tmp.Error)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeDeleteAPIKey,
		models.SystemEventAPIKeyRelated{KeyID: entry.ID, KeyName: entry.Name},
	); err != nil {
		return fmt.Errorf(
			"failed to log delete API key '%s' audit event [%w]", entry.Name, err,
		)
	}

	return nil
}
