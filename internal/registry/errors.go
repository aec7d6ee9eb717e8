package registry

import (
	"errors"
	"fmt"
)

// RegistryVersion is the on-disk format version written by this code.
// A major component mismatch on load is fatal for the offending operation.
const RegistryVersion = "1.0"

// VersionMismatchError reports an incompatible on-disk registry format.
// The engine refuses to read or overwrite such a file.
type VersionMismatchError struct {
	Path string
	Have string
	Want string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("registry %s has incompatible version %s (code is %s)", e.Path, e.Have, e.Want)
}

// ErrNotFound is returned by lookups when no record or entry exists
var ErrNotFound = errors.New("registry: not found")

// majorVersion returns the major component of a "MAJOR.MINOR" version string
func majorVersion(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}

// compatibleVersion reports whether an on-disk version can be handled by this code
func compatibleVersion(v string) bool {
	return majorVersion(v) == majorVersion(RegistryVersion)
}
