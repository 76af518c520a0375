package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyInput         = errors.New("empty input")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrUnsupportedInput   = errors.New("unsupported input")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")

	ErrSessionNotFound   = fmt.Errorf("session %w", ErrNotFound)
	ErrIndexNotFound     = fmt.Errorf("vector index %w", ErrNotFound)
	ErrDocumentsNotFound = fmt.Errorf("documents directory %w", ErrNotFound)
)
