package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"
)

const defaultCodeLength = 6

// GenerateNumericCode returns an n-digit code drawn uniformly from
// [10^(n-1), 10^n - 1], so it never has a leading zero.
func GenerateNumericCode(n int) (string, error) {
	if n <= 0 {
		n = defaultCodeLength
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n-1)), nil)
	high := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	span := new(big.Int).Sub(high, low)

	v, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return v.Add(v, low).String(), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskCode keeps the first two characters for log correlation.
func MaskCode(code string) string {
	if len(code) <= 2 {
		return "****"
	}
	return code[:2] + strings.Repeat("*", len(code)-2)
}
