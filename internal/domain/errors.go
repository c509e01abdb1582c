package domain

import "errors"

// Structural errors raised by the decision core. Callers match them with
// errors.Is; call sites wrap them with detail.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyRecorded = errors.New("outcome already recorded")
)
