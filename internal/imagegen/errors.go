package imagegen

import "errors"

var (
	ErrJobNotFound      = errors.New("image job not found")
	ErrDuplicateRequest = errors.New("duplicate tool call id")
	ErrInvalidRequest   = errors.New("session id, tool call id and prompt are required")
	ErrStillWorking     = errors.New("image is still being generated")
)
