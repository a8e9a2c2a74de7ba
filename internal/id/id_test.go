package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	got, err := Generate("job")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "job-"))
	assert.Greater(t, len(got), len("job-"))
}

func TestMustGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := MustGenerate("job")
		assert.False(t, seen[id])
		seen[id] = true
	}
}
