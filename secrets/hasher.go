package secrets

import (
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"golang.org/x/crypto/bcrypt"
)

// SecretHasher one-way salted hashing of API key secrets
type SecretHasher interface {
	/*
		Hash compute the one-way hash of a secret

		Each call salts independently; two hashes of the same secret are not
		byte equal, but both verify against it.

			@param secret string - the secret to hash
			@returns the hash value
	*/
	Hash(secret string) (string, error)

	/*
		Verify check a secret against a hash value

		A malformed or empty hash value verifies as false.

			@param secret string - the presented secret
			@param hashValue string - the stored hash value
			@returns whether the secret produced the hash
	*/
	Verify(secret string, hashValue string) bool

	/*
		DummyHash a well formed hash value that matches no real secret

		Comparing against it costs the same as comparing against a stored
		hash, so it can stand in for a missing or disabled hash slot without
		changing observable timing.

			@returns the dummy hash value
	*/
	DummyHash() string
}

// bcryptHasher implements SecretHasher using bcrypt
type bcryptHasher struct {
	goutils.Component
	cost      int
	dummyHash string
}

/*
NewBcryptHasher define a new bcrypt based secret hasher

The instance is meant to be constructed once at startup and injected wherever
hashing is needed; the cost factor is fixed at construction.

	@param cost int - bcrypt cost factor
	@returns hasher instance
*/
func NewBcryptHasher(cost int) (SecretHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf(
			"bcrypt cost %d outside supported range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost,
		)
	}

	logTags := log.Fields{"package": "zenml", "module": "secrets", "component": "secret-hasher"}

	instance := &bcryptHasher{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		cost: cost,
	}

	// The dummy hash is the hash of a random secret which is discarded
	// immediately, so nothing a caller presents can ever match it. It is
	// computed at the same cost as real hashes.
	generator, err := NewSecretGenerator(MinSecretLen)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare generator for dummy hash [%w]", err)
	}
	discarded, err := generator.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy hash base secret [%w]", err)
	}
	instance.dummyHash, err = instance.Hash(discarded)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dummy hash [%w]", err)
	}

	return instance, nil
}

/*
Hash compute the one-way hash of a secret

	@param secret string - the secret to hash
	@returns the hash value
*/
func (h *bcryptHasher) Hash(secret string) (string, error) {
	hashValue, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hashing failed [%w]", err)
	}
	return string(hashValue), nil
}

/*
Verify check a secret against a hash value

	@param secret string - the presented secret
	@param hashValue string - the stored hash value
	@returns whether the secret produced the hash
*/
func (h *bcryptHasher) Verify(secret string, hashValue string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashValue), []byte(secret)) == nil
}

/*
DummyHash a well formed hash value that matches no real secret

	@returns the dummy hash value
*/
func (h *bcryptHasher) DummyHash() string {
	return h.dummyHash
}
