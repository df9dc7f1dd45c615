package models

import "errors"

// Validation errors: bad input, nothing was mutated.
var (
	ErrValidation        = errors.New("validation failed")
	ErrAssetNotProcessed = errors.New("asset has not been processed")
	ErrNoEligibleVariant = errors.New("no eligible variant")
	ErrNoEligibleAccount = errors.New("no eligible account")
)

// State conflicts: the operation is not allowed in the record's current state.
var (
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrRetryExhausted   = errors.New("retry limit reached")
	ErrAccountInUse     = errors.New("account has pending jobs")
	ErrAssetInUse       = errors.New("asset has pending jobs")
	ErrDuplicateAccount = errors.New("account already exists")
)

var ErrNotFound = errors.New("not found")

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAssetNotProcessed) ||
		errors.Is(err, ErrNoEligibleVariant) ||
		errors.Is(err, ErrNoEligibleAccount)
}

// IsConflict reports whether err belongs to the state-conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrRetryExhausted) ||
		errors.Is(err, ErrAccountInUse) ||
		errors.Is(err, ErrAssetInUse) ||
		errors.Is(err, ErrDuplicateAccount)
}
