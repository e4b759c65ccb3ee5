package random_test

import (
	"encoding/hex"
	"testing"

	"github.com/nasermirzaei89/commentbox/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex(t *testing.T) {
	t.Parallel()

	value := random.Hex(16)
	assert.Len(t, value, 32)

	_, err := hex.DecodeString(value)
	require.NoError(t, err)

	assert.NotEqual(t, value, random.Hex(16))
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Len(t, random.Key(32), 32)
	assert.Empty(t, random.Key(0))
}
