package primary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(1, 0))
	assert.Equal(t, "$1", placeholders(1, 1))
	assert.Equal(t, "$2, $3, $4", placeholders(2, 3))
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, isPostgresDSN("postgres://u@localhost/db"))
	assert.True(t, isPostgresDSN("postgresql://u@localhost/db"))
	assert.False(t, isPostgresDSN("bottle.db"))
	assert.False(t, isPostgresDSN(":memory:"))
}
