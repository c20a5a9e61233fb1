package types

import "errors"

var (
	// ErrNotFound is returned by a backend when the requested row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrTableMissing is returned by a backend when the backing table has not been created.
	ErrTableMissing = errors.New("table not found")
)
