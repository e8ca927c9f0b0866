package errs

import "errors"

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrValidation       = errors.New("validation failed")
	ErrPledgeState      = errors.New("operation not allowed in current pledge state")
	ErrVersionConflict  = errors.New("concurrent modification detected")
	ErrDuplicateReceipt = errors.New("webhook event already processed")
)
