package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidReceipt   = errors.New("invalid consent receipt")
	ErrInvalidHash      = errors.New("invalid hash encoding")
	ErrSaltMissing      = errors.New("salt missing")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrProofInvalid     = errors.New("log proof invalid")
	ErrSTHInvalid       = errors.New("sth invalid")
	ErrPolicyDenied     = errors.New("consent policy denied")
	ErrLogUnavailable   = errors.New("transparency log unavailable")

	// ErrEquivocation marks two tree heads claiming different roots for the
	// same size. Reliance on the log must halt; this is never auto-resolved.
	ErrEquivocation = errors.New("log equivocation detected")
)
