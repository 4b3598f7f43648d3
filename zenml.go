// Package zenml - API key lifecycle engine
package zenml

import (
	"context"
	"fmt"

	"github.com/VishalKumar-S/zenml/db"
	"github.com/VishalKumar-S/zenml/manager"
	"github.com/VishalKumar-S/zenml/models"
	"github.com/VishalKumar-S/zenml/secrets"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// APIKeyServiceConfig API key service init parameters
type APIKeyServiceConfig struct {
	// HashCost bcrypt cost factor for secret hashing
	HashCost int `validate:"gte=4,lte=31"`
	// SecretLength number of random bytes per generated secret
	SecretLength int `validate:"gte=32"`
	// UpdateLastUsedOnAuth whether successful authentication updates the
	// key's last used timestamp
	UpdateLastUsedOnAuth bool `validate:"-"`
}

/*
NewAPIKeyService initialize an API key manager instance.

Each instance is backed by a SQL database; two instances using the same
database are essentially copies of each other.

	@param ctx context.Context - execution context
	@param dbDialector gorm.Dialector - GORM dialector
	@param dbLogLevel logger.LogLevel - SQL log level
	@param config APIKeyServiceConfig - service parameters
	@returns new manager instance
*/
func NewAPIKeyService(
	ctx context.Context,
	dbDialector gorm.Dialector,
	dbLogLevel logger.LogLevel,
	config APIKeyServiceConfig,
) (manager.APIKeyManager, error) {
	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid service init parameters [%w]", err)
	}

	// Prepare persistence
	persistence, err := db.NewConnection(dbDialector, dbLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}

	// Prepare the secrets engine
	generator, err := secrets.NewSecretGenerator(config.SecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized secret generator [%w]", err)
	}
	hasher, err := secrets.NewBcryptHasher(config.HashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized secret hasher [%w]", err)
	}
	verifier := secrets.NewVerifier(hasher)

	keyManager, err := manager.NewAPIKeyManager(ctx, manager.APIKeyManagerParams{
		Persistence:          persistence,
		Generator:            generator,
		Hasher:               hasher,
		Verifier:             verifier,
		UpdateLastUsedOnAuth: config.UpdateLastUsedOnAuth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialized API key manager [%w]", err)
	}

	// First-run state handling
	if dbErr := persistence.UseDatabaseInTransaction(
		ctx, func(dbCtx context.Context, dbClient db.Database) error {
			params, err := dbClient.GetSystemParamEntry(dbCtx)
			if err != nil {
				return fmt.Errorf("failed to read system state [%w]", err)
			}
			if params.State == models.SystemStatePreInit {
				if err := dbClient.MarkSystemInitializing(dbCtx); err != nil {
					return fmt.Errorf("failed to mark system initializing [%w]", err)
				}
				if err := dbClient.MarkSystemInitialized(dbCtx); err != nil {
					return fmt.Errorf("failed to mark system initialized [%w]", err)
				}
			}
			return nil
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to prepare system state [%w]", dbErr)
	}

	return keyManager, nil
}
