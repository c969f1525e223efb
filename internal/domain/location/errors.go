package location

import "errors"

var (
	ErrNoMatches         = errors.New("no matches found")
	ErrUnknownCity       = errors.New("unknown city shortcut")
	ErrSearchFailed      = errors.New("location search failed")
	ErrDeviceUnavailable = errors.New("device position unavailable")
)
