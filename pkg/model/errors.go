package model

import "errors"

var (
	// ErrNotFound is returned by store lookups when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDataIntegrity marks corrupt or malformed stored data. It is never
	// absorbed by the graph layer.
	ErrDataIntegrity = errors.New("data integrity violation")
)
