package domain

import (
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
)

// AccountID is a registry account identifier.
//
// Named accounts are 2..64 characters of lowercase alphanumeric segments
// separated by single '.', '_' or '-'. Implicit accounts are 64 hex
// characters encoding a canonical ed25519 public key.
type AccountID string

// String returns the string representation of AccountID.
func (a AccountID) String() string {
	return string(a)
}

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64

	implicitAccountIDLen = 64
)

// Validate checks the account identifier format. Implicit IDs must decode to
// a canonical point on the ed25519 curve.
func (a AccountID) Validate() error {
	s := string(a)
	if len(s) < minAccountIDLen || len(s) > maxAccountIDLen {
		return fmt.Errorf("account id %q: length must be %d..%d", s, minAccountIDLen, maxAccountIDLen)
	}

	if len(s) == implicitAccountIDLen && isHex(s) {
		return validateImplicitAccountID(s)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isLowerAlnum(c):
		case isSeparator(c):
			if i == 0 || i == len(s)-1 || isSeparator(s[i-1]) {
				return fmt.Errorf("account id %q: misplaced separator", s)
			}
		default:
			return fmt.Errorf("account id %q: invalid character %q", s, c)
		}
	}
	return nil
}

// validateImplicitAccountID requires the 32 decoded bytes to be a canonical
// encoding of an ed25519 curve point.
func validateImplicitAccountID(s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("implicit account id %q: %w", s, err)
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("implicit account id %q: not a curve point", s)
	}
	return nil
}

func isLowerAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func isSeparator(c byte) bool {
	return c == '.' || c == '_' || c == '-'
}

func isHex(s string) bool {
	for _, c := range s {
		ok := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !ok {
			return false
		}
	}
	return true
}
