package certs

import "errors"

var (
	// ErrValidation wraps a field that violates policy
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when another issuance or revocation of the
	// same certificate is still in flight
	ErrConflict = errors.New("conflicting certificate update")
	// ErrNotFound is returned for unknown certificates and institutions
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRevoked is returned when revoking or re-issuing a revoked
	// certificate
	ErrAlreadyRevoked = errors.New("certificate already revoked")
	// ErrInvalidTransition is returned for lifecycle moves the state machine
	// does not allow
	ErrInvalidTransition = errors.New("invalid status transition")
)
