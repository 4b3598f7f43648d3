// Package manager - API key lifecycle controllers
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/VishalKumar-S/zenml/db"
	"github.com/VishalKumar-S/zenml/models"
	"github.com/VishalKumar-S/zenml/secrets"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// APIKeyManager API key lifecycle manager.
//
// This is the boundary external callers (CLI / API layers) interact with. It
// only ever returns the public projection of an API key; the raw secret
// appears exactly once, inside the encoded credential of a create or rotate
// response.
type APIKeyManager interface {
	/*
		CreateKey define a new API key

		The response carries the encoded bearer credential. It is the only
		time the secret is visible; it cannot be recovered afterward.

			@param ctx context.Context - execution context
			@param request models.APIKeyRequest - API key creation parameters
			@param timestamp time.Time - creation timestamp
			@param activeDBClient Database - existing database transaction
			@returns the new API key with its credential
	*/
	CreateKey(
		ctx context.Context,
		request models.APIKeyRequest,
		timestamp time.Time,
		activeDBClient db.Database,
	) (models.APIKeyInfo, error)

	/*
		GetKey fetch an API key by name or ID

			@param ctx context.Context - execution context
			@param scopeID string - the owning scope
			@param nameOrID string - API key name or ID
			@param activeDBClient Database - existing database transaction
			@returns the API key
	*/
	GetKey(
		ctx context.Context, scopeID string, nameOrID string, activeDBClient db.Database,
	) (models.APIKeyInfo, error)

	/*
		ListKeys list API keys

			@param ctx context.Context - execution context
			@param filters db.APIKeyQueryFilter - entry listing filter
			@param activeDBClient Database - existing database transaction
			@returns matching API keys
	*/
	ListKeys(
		ctx context.Context, filters db.APIKeyQueryFilter, activeDBClient db.Database,
	) ([]models.APIKeyInfo, error)

	/*
		UpdateKey update an API key's mutable metadata

		Only non-nil fields of the update are applied. Deactivating a key
		blocks all verification against it without deleting its history.

			@param ctx context.Context - execution context
			@param scopeID string - the owning scope
			@param nameOrID string - API key name or ID
			@param update models.APIKeyUpdate - fields to change
			@param activeDBClient Database - existing database transaction
			@returns the updated API key
	*/
	UpdateKey(
		ctx context.Context,
		scopeID string,
		nameOrID string,
		update models.APIKeyUpdate,
		activeDBClient db.Database,
	) (models.APIKeyInfo, error)

	/*
		RotateKey rotate the secret of an API key

		The superseded secret remains valid for the retain period; a retain
		period of zero expires it immediately. The response carries the new
		encoded bearer credential.

			@param ctx context.Context - execution context
			@param scopeID string - the owning scope
			@param nameOrID string - API key name or ID
			@param retainPeriod time.Duration - grace window for the previous secret
			@param timestamp time.Time - rotation timestamp
			@param activeDBClient Database - existing database transaction
			@returns the rotated API key with its new credential
	*/
	RotateKey(
		ctx context.Context,
		scopeID string,
		nameOrID string,
		retainPeriod time.Duration,
		timestamp time.Time,
		activeDBClient db.Database,
	) (models.APIKeyInfo, error)

	/*
		DeleteKey permanently delete an API key

			@param ctx context.Context - execution context
			@param scopeID string - the owning scope
			@param nameOrID string - API key name or ID
			@param activeDBClient Database - existing database transaction
	*/
	DeleteKey(
		ctx context.Context, scopeID string, nameOrID string, activeDBClient db.Database,
	) error

	/*
		Authenticate verify an encoded bearer credential

		Every failure, from a malformed token to an expired grace window,
		returns models.ErrInvalidCredential with no further detail.

			@param ctx context.Context - execution context
			@param token string - the encoded bearer credential
			@param timestamp time.Time - the current time
			@param activeDBClient Database - existing database transaction
			@returns the authenticated API key
	*/
	Authenticate(
		ctx context.Context, token string, timestamp time.Time, activeDBClient db.Database,
	) (models.APIKeyInfo, error)
}

// apiKeyManager implements APIKeyManager
type apiKeyManager struct {
	goutils.Component

	persistence db.Client

	generator secrets.SecretGenerator
	hasher    secrets.SecretHasher
	verifier  secrets.Verifier

	updateLastUsedOnAuth bool
}

// APIKeyManagerParams API key manager init parameters
type APIKeyManagerParams struct {
	// Persistence persistence layer client
	Persistence db.Client `validate:"-"`
	// Generator secret generator
	Generator secrets.SecretGenerator `validate:"-"`
	// Hasher secret hasher
	Hasher secrets.SecretHasher `validate:"-"`
	// Verifier API key verifier
	Verifier secrets.Verifier `validate:"-"`
	// UpdateLastUsedOnAuth whether successful authentication updates the
	// key's last used timestamp. Failed attempts never do.
	UpdateLastUsedOnAuth bool `validate:"-"`
}

/*
NewAPIKeyManager define new API key manager

	@param ctx context.Context - execution context
	@param params APIKeyManagerParams - manager parameters
	@returns manager instance
*/
func NewAPIKeyManager(_ context.Context, params APIKeyManagerParams) (APIKeyManager, error) {
	if params.Persistence == nil || params.Generator == nil ||
		params.Hasher == nil || params.Verifier == nil {
		return nil, fmt.Errorf("API key manager init parameters are incomplete")
	}

	logTags := log.Fields{"package": "zenml", "module": "manager", "component": "api-key-manager"}

	return &apiKeyManager{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence:          params.Persistence,
		generator:            params.Generator,
		hasher:               params.Hasher,
		verifier:             params.Verifier,
		updateLastUsedOnAuth: params.UpdateLastUsedOnAuth,
	}, nil
}

// resolveKey fetch an API key by ID when the reference parses as a UUID,
// otherwise by name within the scope
func (m *apiKeyManager) resolveKey(
	ctx context.Context, dbClient db.Database, scopeID string, nameOrID string,
) (models.APIKey, error) {
	if _, err := uuid.Parse(nameOrID); err == nil {
		return dbClient.GetAPIKey(ctx, nameOrID)
	}
	return dbClient.GetAPIKeyByName(ctx, scopeID, nameOrID)
}

/*
CreateKey define a new API key

	@param ctx context.Context - execution context
	@param request models.APIKeyRequest - API key creation parameters
	@param timestamp time.Time - creation timestamp
	@param activeDBClient Database - existing database transaction
	@returns the new API key with its credential
*/
func (m *apiKeyManager) CreateKey(
	ctx context.Context,
	request models.APIKeyRequest,
	timestamp time.Time,
	activeDBClient db.Database,
) (models.APIKeyInfo, error) {
	// Generate and hash outside the transaction. Hashing is deliberately
	// slow; the transaction only covers the insert.
	secret, err := m.generator.NewSecret()
	if err != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to generate API key secret [%w]", err)
	}
	keyHash, err := m.hasher.Hash(secret)
	if err != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to hash API key secret [%w]", err)
	}

	var entry models.APIKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			entry, err = dbClient.DefineNewAPIKey(dbCtx, request, keyHash, timestamp)
			return err
		},
	); dbErr != nil {
		return models.APIKeyInfo{}, fmt.Errorf(
			"failed to create API key '%s' [%w]", request.Name, dbErr,
		)
	}

	info := entry.Info()
	info.Key, err = models.Credential{ID: entry.ID, Key: secret}.Encode()
	if err != nil {
		return models.APIKeyInfo{}, fmt.Errorf(
			"failed to encode credential for API key '%s' [%w]", request.Name, err,
		)
	}

	return info, nil
}

/*
GetKey fetch an API key by name or ID

	@param ctx context.Context - execution context
	@param scopeID string - the owning scope
	@param nameOrID string - API key name or ID
	@param activeDBClient Database - existing database transaction
	@returns the API key
*/
func (m *apiKeyManager) GetKey(
	ctx context.Context, scopeID string, nameOrID string, activeDBClient db.Database,
) (models.APIKeyInfo, error) {
	var entry models.APIKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			entry, err = m.resolveKey(dbCtx, dbClient, scopeID, nameOrID)
			return err
		},
	); dbErr != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to fetch API key '%s' [%w]", nameOrID, dbErr)
	}

	return entry.Info(), nil
}

/*
ListKeys list API keys

	@param ctx context.Context - execution context
	@param filters db.APIKeyQueryFilter - entry listing filter
	@param activeDBClient Database - existing database transaction
	@returns matching API keys
*/
func (m *apiKeyManager) ListKeys(
	ctx context.Context, filters db.APIKeyQueryFilter, activeDBClient db.Database,
) ([]models.APIKeyInfo, error) {
	var entries []models.APIKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			entries, err = dbClient.ListAPIKeys(dbCtx, filters)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to list API keys [%w]", dbErr)
	}

	result := []models.APIKeyInfo{}
	for _, entry := range entries {
		result = append(result, entry.Info())
	}

	return result, nil
}

/*
UpdateKey update an API key's mutable metadata

	@param ctx context.Context - execution context
	@param scopeID string - the owning scope
	@param nameOrID string - API key name or ID
	@param update models.APIKeyUpdate - fields to change
	@param activeDBClient Database - existing database transaction
	@returns the updated API key
*/
func (m *apiKeyManager) UpdateKey(
	ctx context.Context,
	scopeID string,
	nameOrID string,
	update models.APIKeyUpdate,
	activeDBClient db.Database,
) (models.APIKeyInfo, error) {
	var entry models.APIKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			existing, err := m.resolveKey(dbCtx, dbClient, scopeID, nameOrID)
			if err != nil {
				return err
			}
			entry, err = dbClient.UpdateAPIKey(dbCtx, existing.ID, update)
			return err
		},
	); dbErr != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to update API key '%s' [%w]", nameOrID, dbErr)
	}

	return entry.Info(), nil
}

/*
RotateKey rotate the secret of an API key

	@param ctx context.Context - execution context
	@param scopeID string - the owning scope
	@param nameOrID string - API key name or ID
	@param retainPeriod time.Duration - grace window for the previous secret
	@param timestamp time.Time - rotation timestamp
	@param activeDBClient Database - existing database transaction
	@returns the rotated API key with its new credential
*/
func (m *apiKeyManager) RotateKey(
	ctx context.Context,
	scopeID string,
	nameOrID string,
	retainPeriod time.Duration,
	timestamp time.Time,
	activeDBClient db.Database,
) (models.APIKeyInfo, error) {
	// As with creation, the slow hash happens before the transaction opens.
	secret, err := m.generator.NewSecret()
	if err != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to generate API key secret [%w]", err)
	}
	newHash, err := m.hasher.Hash(secret)
	if err != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to hash API key secret [%w]", err)
	}

	var entry models.APIKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			existing, err := m.resolveKey(dbCtx, dbClient, scopeID, nameOrID)
			if err != nil {
				return err
			}
			entry, err = dbClient.RotateAPIKeyHash(
				dbCtx, existing.ID, newHash, retainPeriod, timestamp,
			)
			return err
		},
	); dbErr != nil {
		return models.APIKeyInfo{}, fmt.Errorf("failed to rotate API key '%s' [%w]", nameOrID, dbErr)
	}

	info := entry.Info()
	info.Key, err = models.Credential{ID: entry.ID, Key: secret}.Encode()
	if err != nil {
		return models.APIKeyInfo{}, fmt.Errorf(
			"failed to encode credential for API key '%s' [%w]", nameOrID, err,
		)
	}

	return info, nil
}

/*
DeleteKey permanently delete an API key

	@param ctx context.Context - execution context
	@param scopeID string - the owning scope
	@param nameOrID string - API key name or ID
	@param activeDBClient Database - existing database transaction
*/
func (m *apiKeyManager) DeleteKey(
	ctx context.Context, scopeID string, nameOrID string, activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			existing, err := m.resolveKey(dbCtx, dbClient, scopeID, nameOrID)
			if err != nil {
				return err
			}
			return dbClient.DeleteAPIKey(dbCtx, existing.ID)
		},
	); dbErr != nil {
		return fmt.Errorf("failed to delete API key '%s' [%w]", nameOrID, dbErr)
	}

	return nil
}

/*
Authenticate verify an encoded bearer credential

	@param ctx context.Context - execution context
	@param token string - the encoded bearer credential
	@param timestamp time.Time - the current time
	@param activeDBClient Database - existing database transaction
	@returns the authenticated API key
*/
func (m *apiKeyManager) Authenticate(
	ctx context.Context, token string, timestamp time.Time, activeDBClient db.Database,
) (models.APIKeyInfo, error) {
	cred, err := models.DecodeCredential(token)
	if err != nil {
		return models.APIKeyInfo{}, models.ErrInvalidCredential
	}

	var entry models.APIKey
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			entry, err = dbClient.GetAPIKey(dbCtx, cred.ID)
			return err
		},
	); dbErr != nil {
		// Burn the same verification work an existing record would cost, so
		// an unknown key ID is not distinguishable by timing.
		m.verifier.VerifyKey(models.APIKey{}, cred.Key, timestamp)
		return models.APIKeyInfo{}, models.ErrInvalidCredential
	}

	if !m.verifier.VerifyKey(entry, cred.Key, timestamp) {
		return models.APIKeyInfo{}, models.ErrInvalidCredential
	}

	if m.updateLastUsedOnAuth {
		if dbErr := db.ActiveSessionWrapper(
			ctx, activeDBClient, m.persistence, func(dbCtx context.Context, dbClient db.Database) error {
				return dbClient.MarkAPIKeyUsed(dbCtx, entry.ID, timestamp)
			},
		); dbErr != nil {
			// The caller already authenticated; a stale last-used timestamp
			// is not worth failing the request over.
			log.WithError(dbErr).WithFields(m.LogTags).Warn("Last used timestamp update failed")
		} else {
			entry.LastUsed = timestamp
		}
	}

	return entry.Info(), nil
}
