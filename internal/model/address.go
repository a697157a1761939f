package model

import (
	"fmt"
	"strings"
)

// addressLen is the length of a 0x-prefixed 20-byte hex address.
const addressLen = 42

// Address is a normalized (lowercase) 0x-prefixed hex account or
// collection address. The zero value means absent.
type Address string

// ParseAddress validates s and returns it normalized to lowercase.
func ParseAddress(s string) (Address, error) {
	a := Address(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}

// Valid reports whether the address is a well-formed lowercase
// 0x-prefixed 40-digit hex string.
func (a Address) Valid() bool {
	if len(a) != addressLen || a[0] != '0' || a[1] != 'x' {
		return false
	}
	for _, c := range a[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// String returns the address as a plain string.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == "" }
