package models

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
)

// Credential the bearer token payload exchanged with a caller exactly once
type Credential struct {
	// ID the API key ID
	ID string `json:"id"`
	// Key the raw API key secret
	Key string `json:"key"`
}

/*
Encode serialize the credential into its opaque wire form.

The wire form is the standard base64 encoding of the UTF-8 JSON object
`{"id": "...", "key": "..."}`.

	@returns the encoded bearer token
*/
func (c Credential) Encode() (string, error) {
	asJSON, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(asJSON), nil
}

/*
DecodeCredential parse an encoded bearer token.

Every structural failure maps to ErrInvalidCredential without further detail.
The decoder must not tell an attacker why a token failed to parse.

	@param token string - the encoded bearer token
	@returns the credential payload
*/
func DecodeCredential(token string) (Credential, error) {
	asJSON, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Credential{}, ErrInvalidCredential
	}

	var parsed Credential
	if err := json.Unmarshal(asJSON, &parsed); err != nil {
		return Credential{}, ErrInvalidCredential
	}

	if _, err := uuid.Parse(parsed.ID); err != nil {
		return Credential{}, ErrInvalidCredential
	}
	if parsed.Key == "" {
		return Credential{}, ErrInvalidCredential
	}

	return parsed, nil
}
