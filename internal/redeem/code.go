package redeem

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	CodeLength   = 16
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewCode returns a random 16-character code over A-Z0-9.
func NewCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	size := big.NewInt(int64(len(codeAlphabet)))
	for range CodeLength {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and upper-cases a submitted code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
