// Package secrets - API key secret generation, hashing, and verification
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/VishalKumar-S/zenml/models"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
)

// MinSecretLen minimum number of random bytes backing one API key secret
const MinSecretLen = 32

// SecretGenerator produces the raw random material backing an API key
type SecretGenerator interface {
	/*
		NewSecret generate a new random secret

			@returns the secret as a printable token
	*/
	NewSecret() (string, error)
}

// secretGenerator implements SecretGenerator
type secretGenerator struct {
	goutils.Component
	secretLen int
}

/*
NewSecretGenerator define a new secret generator

Secrets are read from the platform CSPRNG and rendered as hex. The length
floor is enforced here so no caller can configure a weaker secret.

	@param secretLen int - number of random bytes per secret
	@returns generator instance
*/
func NewSecretGenerator(secretLen int) (SecretGenerator, error) {
	if secretLen < MinSecretLen {
		return nil, fmt.Errorf(
			"requested secret length %d is below the %d byte minimum", secretLen, MinSecretLen,
		)
	}

	logTags := log.Fields{"package": "zenml", "module": "secrets", "component": "secret-generator"}

	return &secretGenerator{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		secretLen: secretLen,
	}, nil
}

/*
NewSecret generate a new random secret

	@returns the secret as a printable token
*/
func (g *secretGenerator) NewSecret() (string, error) {
	buf := make([]byte, g.secretLen)
	if n, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf(
			"failed to read %d bytes from CSPRNG (%v) [%w]", g.secretLen, err, models.ErrEntropyFailure,
		)
	} else if n != g.secretLen {
		return "", fmt.Errorf(
			"did not get %d bytes from CSPRNG, only %d [%w]", g.secretLen, n, models.ErrEntropyFailure,
		)
	}
	return hex.EncodeToString(buf), nil
}
