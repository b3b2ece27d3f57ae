package store

import (
	"errors"

	"bottle/internal/models"
)

var (
	ErrNotFound  = errors.New("store: resource not found")
	ErrDuplicate = errors.New("store: duplicate resource")
	ErrConflict  = errors.New("store: conflicting resource state")

	ErrForeignKeyViolation = errors.New("store: foreign key constraint violation")
)

// IsNotFound matches both the store sentinel and the domain one so callers
// above the store do not need to care which layer produced it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, models.ErrNotFound)
}
