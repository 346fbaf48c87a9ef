package util

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNumericCode(t *testing.T) {
	t.Run("generates six digits in range", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			code, err := GenerateNumericCode(6)
			require.NoError(t, err)
			require.Len(t, code, 6)

			n, err := strconv.Atoi(code)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, 100000)
			assert.LessOrEqual(t, n, 999999)
		}
	})

	t.Run("never has a leading zero", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			code, err := GenerateNumericCode(6)
			require.NoError(t, err)
			assert.NotEqual(t, byte('0'), code[0])
		}
	})

	t.Run("non-positive length falls back to six", func(t *testing.T) {
		code, err := GenerateNumericCode(0)
		require.NoError(t, err)
		assert.Len(t, code, 6)
	})

	t.Run("supports other lengths", func(t *testing.T) {
		code, err := GenerateNumericCode(8)
		require.NoError(t, err)
		assert.Len(t, code, 8)
	})

	t.Run("generates varied codes", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			code, _ := GenerateNumericCode(6)
			seen[code] = true
		}
		assert.Greater(t, len(seen), 40)
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		assert.Len(t, HashToken("admin@co.com"), 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		assert.Equal(t, HashToken("admin@co.com"), HashToken("admin@co.com"))
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		assert.NotEqual(t, HashToken("a@co.com"), HashToken("b@co.com"))
	})
}

func TestConstantTimeEqual(t *testing.T) {
	t.Run("returns true for equal strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("abc", "abc"))
	})

	t.Run("returns false for different strings", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "def"))
	})

	t.Run("returns false for different lengths", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "abcd"))
	})
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "12****", MaskCode("123456"))
	assert.Equal(t, "****", MaskCode("1"))
}
