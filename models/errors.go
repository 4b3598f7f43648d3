package models

import "errors"

// ErrNotFound the referenced API key does not exist
var ErrNotFound = errors.New("api key does not exist")

// ErrAlreadyExists an API key with the same name already exists in the scope
var ErrAlreadyExists = errors.New("api key already exists")

// ErrInvalidCredential the presented credential did not authenticate.
//
// This error is deliberately generic. It covers malformed tokens, unknown
// key IDs, wrong secrets, deactivated keys, and expired grace windows alike,
// so error content cannot be used to probe which of those occurred.
var ErrInvalidCredential = errors.New("invalid credential")

// ErrEntropyFailure the secure random source could not be read. Fatal; the
// condition is not transient and must not be retried.
var ErrEntropyFailure = errors.New("secure random source unavailable")
