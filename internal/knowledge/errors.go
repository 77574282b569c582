package knowledge

import "errors"

var (
	ErrEntryNotFound   = errors.New("knowledge entry not found")
	ErrInvalidCategory = errors.New("invalid knowledge category")
	ErrInvalidSource   = errors.New("invalid knowledge source")
	ErrEmptyField      = errors.New("title and content are required")
)
