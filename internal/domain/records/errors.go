package records

import "errors"

// Errors returned by the registry core. Callers match them with errors.Is;
// concrete failures wrap one of these with the offending key or value.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)
