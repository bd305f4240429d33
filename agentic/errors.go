package agentic

import "errors"

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrToolNotAllowed = errors.New("tool not allowed")
)
