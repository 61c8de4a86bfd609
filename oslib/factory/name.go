package factory

import (
	"bytes"
	"fmt"
	"strings"
)

// MaxNameLength is the capacity of a Name.
const MaxNameLength = 8

// Name is a fixed capacity object name, zero padded.
type Name [MaxNameLength]byte

// MakeName converts s to a Name. Names longer than MaxNameLength are
// rejected instead of truncated.
func MakeName(s string) (Name, error) {
	var n Name
	switch {
	case s == "":
		return n, ErrBadName
	case len(s) > MaxNameLength:
		return n, fmt.Errorf("%w: %q is %d bytes, max %d", ErrNameTooLong, s, len(s), MaxNameLength)
	case strings.IndexByte(s, 0) >= 0:
		return n, fmt.Errorf("%w: %q", ErrBadName, s)
	}
	copy(n[:], s)
	return n, nil
}

func (n Name) String() string {
	if i := bytes.IndexByte(n[:], 0); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}
