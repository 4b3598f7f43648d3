package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/VishalKumar-S/zenml/db"
	"github.com/VishalKumar-S/zenml/models"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// TestDBCreateAPIKey verifies the behavior of `Database.DefineNewAPIKey`,
// `Database.GetAPIKey`, and `Database.DeleteAPIKey`.
func TestDBCreateAPIKey(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/zenml_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	// Create a new DB connection
	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)

	// Create database tables
	assert.Nil(uut.RunSQLInTransaction(utCtx, db.DefineTables))

	scopeID := uuid.NewString()
	ownerID := uuid.NewString()
	startTime := time.Now().UTC().Truncate(time.Second)

	// -------------------------------------------------------------------------
	// 1 - Define a new API key (test key 1)
	var key1 models.APIKey
	key1Name := uuid.NewString()
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: key1Name, Description: "test key one", OwnerID: ownerID, ScopeID: scopeID,
		}, "hash-one", startTime)
		if err != nil {
			return err
		}
		key1 = k
		return nil
	})
	assert.Nil(err)
	assert.True(key1.Active)
	assert.Nil(key1.PreviousKeyHash)
	assert.Equal(startTime, key1.LastUsed.UTC().Truncate(time.Second))
	assert.Equal(startTime, key1.LastRotated.UTC().Truncate(time.Second))

	// 2 - Get back test key 1 and verify its content
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.GetAPIKey(ctx, key1.ID)
		if err != nil {
			return err
		}
		assert.Equal(key1Name, k.Name)
		assert.Equal("hash-one", k.KeyHash)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 3 - Define a new API key using the same name in the same scope (should fail)
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: key1Name, OwnerID: ownerID, ScopeID: scopeID,
		}, "hash-dup", startTime)
		return err
	})
	assert.Error(err)
	assert.True(errors.Is(err, models.ErrAlreadyExists))

	// 4 - The same name in another scope is allowed
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: key1Name, OwnerID: ownerID, ScopeID: uuid.NewString(),
		}, "hash-other-scope", startTime)
		return err
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 5 - Delete test key 1
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		return dbClient.DeleteAPIKey(ctx, key1.ID)
	})
	assert.Nil(err)

	// 6 - Get back test key 1 (should fail with not found)
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.GetAPIKey(ctx, key1.ID)
		return err
	})
	assert.Error(err)
	assert.True(errors.Is(err, models.ErrNotFound))

	// 7 - Deleting it again also fails with not found
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		return dbClient.DeleteAPIKey(ctx, key1.ID)
	})
	assert.Error(err)
	assert.True(errors.Is(err, models.ErrNotFound))

	// -------------------------------------------------------------------------
	// 8 - List system audit events
	var events []models.SystemEventAudit
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		events, err = dbClient.ListSystemEvents(ctx, db.SystemEventQueryFilter{})
		return err
	})
	assert.Nil(err)

	// Two creates and one delete
	assert.Len(events, 3)

	// Register validator for metadata parsing
	validate := validator.New()
	assert.Nil(models.RegisterWithValidator(validate))

	createEvents := 0
	deleteEvents := 0
	for _, e := range events {
		meta, err := e.ParseMetadata(validate)
		assert.Nil(err)
		keyMeta, ok := meta.(models.SystemEventAPIKeyRelated)
		assert.True(ok)

		switch e.EventType {
		case models.SystemEventTypeCreateAPIKey:
			createEvents++
			assert.Equal(key1Name, keyMeta.KeyName)
		case models.SystemEventTypeDeleteAPIKey:
			deleteEvents++
			assert.Equal(key1.ID, keyMeta.KeyID)
		}
	}
	assert.Equal(2, createEvents)
	assert.Equal(1, deleteEvents)
}

// TestDBFindAPIKeyByName verifies the behavior of Database.GetAPIKeyByName.
func TestDBFindAPIKeyByName(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/zenml_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(uut.RunSQLInTransaction(utCtx, db.DefineTables))

	scopeID := uuid.NewString()
	ownerID := uuid.NewString()
	timestamp := time.Now().UTC()

	// ---------- Create two test keys ----------
	var key1, key2 models.APIKey
	key1Name := uuid.NewString()
	key2Name := uuid.NewString()
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: key1Name, OwnerID: ownerID, ScopeID: scopeID,
		}, "hash-one", timestamp)
		if err != nil {
			return err
		}
		key1 = k
		k, err = dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: key2Name, OwnerID: ownerID, ScopeID: scopeID,
		}, "hash-two", timestamp)
		if err != nil {
			return err
		}
		key2 = k
		return nil
	})
	assert.Nil(err)

	// ---------- Fetch each key by name ----------
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.GetAPIKeyByName(ctx, scopeID, key1Name)
		if err != nil {
			return err
		}
		assert.Equal(key1.ID, k.ID)

		k, err = dbClient.GetAPIKeyByName(ctx, scopeID, key2Name)
		if err != nil {
			return err
		}
		assert.Equal(key2.ID, k.ID)
		return nil
	})
	assert.Nil(err)

	// ---------- Lookup in the wrong scope fails with not found ----------
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.GetAPIKeyByName(ctx, uuid.NewString(), key1Name)
		return err
	})
	assert.Error(err)
	assert.True(errors.Is(err, models.ErrNotFound))
}

// TestDBUpdateAPIKey verifies partial updates through Database.UpdateAPIKey.
func TestDBUpdateAPIKey(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/zenml_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(uut.RunSQLInTransaction(utCtx, db.DefineTables))

	scopeID := uuid.NewString()
	ownerID := uuid.NewString()
	createdAt := time.Now().UTC().Truncate(time.Second)

	var key1 models.APIKey
	key1Name := uuid.NewString()
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: key1Name, Description: "before", OwnerID: ownerID, ScopeID: scopeID,
		}, "hash-one", createdAt)
		if err != nil {
			return err
		}
		key1 = k
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 1 - Update only the description
	newDescription := "after"
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.UpdateAPIKey(ctx, key1.ID, models.APIKeyUpdate{
			Description: &newDescription,
		})
		if err != nil {
			return err
		}
		assert.Equal(key1Name, k.Name)
		assert.Equal("after", k.Description)
		assert.True(k.Active)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 2 - Deactivate the key; name and description are untouched
	inactive := false
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.UpdateAPIKey(ctx, key1.ID, models.APIKeyUpdate{Active: &inactive})
		if err != nil {
			return err
		}
		assert.False(k.Active)
		assert.Equal(key1Name, k.Name)
		assert.Equal("after", k.Description)
		// Plain updates never touch the usage timestamps
		assert.Equal(createdAt, k.LastUsed.UTC().Truncate(time.Second))
		assert.Equal(createdAt, k.LastRotated.UTC().Truncate(time.Second))
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 3 - Rename the key
	newName := uuid.NewString()
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.UpdateAPIKey(ctx, key1.ID, models.APIKeyUpdate{Name: &newName})
		if err != nil {
			return err
		}
		assert.Equal(newName, k.Name)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 4 - Updating an unknown key fails with not found
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.UpdateAPIKey(ctx, uuid.NewString(), models.APIKeyUpdate{Name: &newName})
		return err
	})
	assert.Error(err)
	assert.True(errors.Is(err, models.ErrNotFound))
}

// TestDBRotateAPIKeyHash verifies the hash slot movement performed by
// Database.RotateAPIKeyHash, and the last-used handling of
// Database.MarkAPIKeyUsed.
func TestDBRotateAPIKeyHash(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/zenml_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(uut.RunSQLInTransaction(utCtx, db.DefineTables))

	scopeID := uuid.NewString()
	ownerID := uuid.NewString()
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var key1 models.APIKey
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: uuid.NewString(), OwnerID: ownerID, ScopeID: scopeID,
		}, "hash-one", createdAt)
		if err != nil {
			return err
		}
		key1 = k
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 1 - First rotation moves the active hash into the previous slot
	rotatedAt := createdAt.Add(time.Hour)
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.RotateAPIKeyHash(ctx, key1.ID, "hash-two", time.Minute*10, rotatedAt)
		if err != nil {
			return err
		}
		assert.Equal("hash-two", k.KeyHash)
		assert.NotNil(k.PreviousKeyHash)
		assert.Equal("hash-one", *k.PreviousKeyHash)
		assert.Equal(time.Minute*10, k.RetainPeriod)
		assert.Equal(rotatedAt, k.LastRotated.UTC())
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 2 - Second rotation with zero retain still records the previous hash
	rotatedAgainAt := rotatedAt.Add(time.Hour)
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.RotateAPIKeyHash(ctx, key1.ID, "hash-three", 0, rotatedAgainAt)
		if err != nil {
			return err
		}
		assert.Equal("hash-three", k.KeyHash)
		assert.NotNil(k.PreviousKeyHash)
		assert.Equal("hash-two", *k.PreviousKeyHash)
		assert.Equal(time.Duration(0), k.RetainPeriod)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 3 - Mark the key used
	usedAt := rotatedAgainAt.Add(time.Minute)
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		if err := dbClient.MarkAPIKeyUsed(ctx, key1.ID, usedAt); err != nil {
			return err
		}
		k, err := dbClient.GetAPIKey(ctx, key1.ID)
		if err != nil {
			return err
		}
		assert.Equal(usedAt, k.LastUsed.UTC())
		// Rotation metadata is unaffected
		assert.Equal(rotatedAgainAt, k.LastRotated.UTC())
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 4 - Rotating an unknown key fails with not found
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.RotateAPIKeyHash(ctx, uuid.NewString(), "hash-x", 0, usedAt)
		return err
	})
	assert.Error(err)
	assert.True(errors.Is(err, models.ErrNotFound))
}

// TestDBListAPIKeys verifies that Database.ListAPIKeys honors its filters.
func TestDBListAPIKeys(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/zenml_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(uut.RunSQLInTransaction(utCtx, db.DefineTables))

	scope1 := uuid.NewString()
	scope2 := uuid.NewString()
	owner1 := uuid.NewString()
	owner2 := uuid.NewString()
	timestamp := time.Now().UTC()

	// Three keys across two scopes and two owners
	var key1, key2, key3 models.APIKey
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		k, err := dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: uuid.NewString(), OwnerID: owner1, ScopeID: scope1,
		}, "hash-one", timestamp)
		if err != nil {
			return err
		}
		key1 = k
		k, err = dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: uuid.NewString(), OwnerID: owner2, ScopeID: scope1,
		}, "hash-two", timestamp)
		if err != nil {
			return err
		}
		key2 = k
		k, err = dbClient.DefineNewAPIKey(ctx, models.APIKeyRequest{
			Name: uuid.NewString(), OwnerID: owner1, ScopeID: scope2,
		}, "hash-three", timestamp)
		if err != nil {
			return err
		}
		key3 = k
		return nil
	})
	assert.Nil(err)

	// Deactivate key 2
	inactive := false
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.UpdateAPIKey(ctx, key2.ID, models.APIKeyUpdate{Active: &inactive})
		return err
	})
	assert.Nil(err)

	checkIDs := func(entries []models.APIKey, expected ...string) {
		found := map[string]bool{}
		for _, entry := range entries {
			found[entry.ID] = true
		}
		assert.Len(found, len(expected))
		for _, id := range expected {
			assert.True(found[id])
		}
	}

	// -------------------------------------------------------------------------
	// 1 - No filter returns everything
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		entries, err := dbClient.ListAPIKeys(ctx, db.APIKeyQueryFilter{})
		if err != nil {
			return err
		}
		checkIDs(entries, key1.ID, key2.ID, key3.ID)
		return nil
	})
	assert.Nil(err)

	// 2 - Filter by scope
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		entries, err := dbClient.ListAPIKeys(ctx, db.APIKeyQueryFilter{TargetScopeID: &scope1})
		if err != nil {
			return err
		}
		checkIDs(entries, key1.ID, key2.ID)
		return nil
	})
	assert.Nil(err)

	// 3 - Filter by owner
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		entries, err := dbClient.ListAPIKeys(ctx, db.APIKeyQueryFilter{TargetOwnerID: &owner1})
		if err != nil {
			return err
		}
		checkIDs(entries, key1.ID, key3.ID)
		return nil
	})
	assert.Nil(err)

	// 4 - Filter by active state
	active := true
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		entries, err := dbClient.ListAPIKeys(ctx, db.APIKeyQueryFilter{TargetActive: &active})
		if err != nil {
			return err
		}
		checkIDs(entries, key1.ID, key3.ID)
		return nil
	})
	assert.Nil(err)

	// 5 - Filter by name
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		entries, err := dbClient.ListAPIKeys(ctx, db.APIKeyQueryFilter{TargetName: &key2.Name})
		if err != nil {
			return err
		}
		checkIDs(entries, key2.ID)
		return nil
	})
	assert.Nil(err)
}
