package study

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotAvailable = errors.New("not available")
	ErrNotFound     = errors.New("not found")
	ErrCollaborator = errors.New("collaborator failure")
)
