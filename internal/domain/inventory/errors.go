package inventory

import "errors"

var (
	// ErrAuthRequired routes the user to login; ErrFetchFailed offers a retry.
	ErrAuthRequired = errors.New("authentication required")
	ErrFetchFailed  = errors.New("inventory fetch failed")
	ErrNotFound     = errors.New("inventory item not found")
)
