package store

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrMissingID     = errors.New("record has no id")
	ErrUnknownTable  = errors.New("table not present in local schema")
	ErrStoreReadOnly = errors.New("store opened read-only")
)
