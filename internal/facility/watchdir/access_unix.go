//go:build unix

package watchdir

import (
	"golang.org/x/sys/unix"
)

// canList checks read and search permission without opening the directory
func canList(dir string) error {
	return unix.Access(dir, unix.R_OK|unix.X_OK)
}
