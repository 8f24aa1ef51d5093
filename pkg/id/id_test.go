package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUniqueAndSortable(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	var prev string
	for i := 0; i < 1000; i++ {
		s := New()
		assert.Len(t, s, 26)
		assert.False(t, seen[s], "duplicate id %s", s)
		seen[s] = true
		if prev != "" {
			assert.True(t, s > prev, "ids must increase: %s then %s", prev, s)
		}
		prev = s
	}
}

func TestNewRunID(t *testing.T) {
	t.Parallel()

	r := NewRunID()
	assert.True(t, strings.HasPrefix(r, "run-"))
	assert.Len(t, r, 30)
}
