package exception

import "errors"

// General errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("operation unsupported by this broker")
)
