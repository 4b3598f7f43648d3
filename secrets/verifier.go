package secrets

import (
	"time"

	"github.com/VishalKumar-S/zenml/models"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
)

/*
PreviousKeyValid check whether the previous secret of an API key is still
inside its rotation grace window.

Pure function of the record and the supplied time. A retain period of zero
means the previous secret expired the moment it was rotated out.

	@param key models.APIKey - the API key record
	@param now time.Time - the current time
	@returns whether the previous secret may still verify
*/
func PreviousKeyValid(key models.APIKey, now time.Time) bool {
	return key.Active && key.RetainPeriod > 0 && now.Sub(key.LastRotated) < key.RetainPeriod
}

// Verifier decides whether a presented secret matches an API key record
type Verifier interface {
	/*
		VerifyKey check a presented secret against both hash slots of a record

			@param key models.APIKey - the API key record
			@param presented string - the presented raw secret
			@param now time.Time - the current time
			@returns whether the secret matches
	*/
	VerifyKey(key models.APIKey, presented string, now time.Time) bool
}

// keyVerifier implements Verifier
type keyVerifier struct {
	goutils.Component
	hasher SecretHasher
}

/*
NewVerifier define a new API key verifier

	@param hasher SecretHasher - the hasher the stored hash values came from
	@returns verifier instance
*/
func NewVerifier(hasher SecretHasher) Verifier {
	logTags := log.Fields{"package": "zenml", "module": "secrets", "component": "key-verifier"}

	return &keyVerifier{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		hasher: hasher,
	}
}

/*
VerifyKey check a presented secret against both hash slots of a record

Both slot comparisons always run. When a slot is unusable (key inactive,
no previous secret, grace window expired) the comparison runs against the
hasher's dummy hash instead of being skipped, so the work done is identical
for every failure cause. Skipping a comparison would let a caller tell
"wrong secret" apart from "inactive key" by timing, which is a response
discrepancy attack (CWE-204).

	@param key models.APIKey - the API key record
	@param presented string - the presented raw secret
	@param now time.Time - the current time
	@returns whether the secret matches
*/
func (v *keyVerifier) VerifyKey(key models.APIKey, presented string, now time.Time) bool {
	currentHash := v.hasher.DummyHash()
	if key.Active && key.KeyHash != "" {
		currentHash = key.KeyHash
	}
	currentOK := v.hasher.Verify(presented, currentHash)

	previousHash := v.hasher.DummyHash()
	if key.PreviousKeyHash != nil && PreviousKeyValid(key, now) {
		previousHash = *key.PreviousKeyHash
	}
	previousOK := v.hasher.Verify(presented, previousHash)

	return currentOK || previousOK
}
