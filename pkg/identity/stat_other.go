//go:build !linux && !darwin

package identity

import (
	"os"
)

// Without a portable stat, creation and access times fall back to the
// modification time and the owner is left empty.
func platformStat(_ string, info os.FileInfo) (fileStat, error) {
	mod := info.ModTime().UTC()
	return fileStat{Created: mod, Accessed: mod}, nil
}
