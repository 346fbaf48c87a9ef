package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "admin@co.com", NormalizeAddress("  Admin@CO.com "))
	assert.Equal(t, "", NormalizeAddress("   "))
}

func TestDigitsOnly(t *testing.T) {
	tests := map[string]string{
		" 123 456":  "123456",
		"123-456":   "123456",
		"123456":    "123456",
		"abc":       "",
		"１２３":       "",
		"\t654321\n": "654321",
	}
	for in, want := range tests {
		assert.Equal(t, want, DigitsOnly(in), "input %q", in)
	}
}

func TestIsEmailLike(t *testing.T) {
	assert.True(t, IsEmailLike("a@b"))
	assert.True(t, IsEmailLike("first.last@example.com"))
	assert.False(t, IsEmailLike("nobody"))
	assert.False(t, IsEmailLike("@example.com"))
	assert.False(t, IsEmailLike("user@"))
	assert.False(t, IsEmailLike(""))
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "jane", LocalPart("jane@example.com"))
	assert.Equal(t, "jane", LocalPart("jane"))
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("3f2504e0-4f89-11d3-9a0c-0305e82c3301"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
}
