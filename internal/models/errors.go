package models

import "errors"

// Storage errors shared by repositories and their callers
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrStale     = errors.New("record changed concurrently")
)
