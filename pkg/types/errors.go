package types

import "errors"

// Domain errors shared across components.
var (
	ErrInvalidRuleID = errors.New("invalid rule ID")
	ErrInvalidScore  = errors.New("score must be between 0 and 1")
	ErrEmptyContent  = errors.New("content cannot be empty")
)
