//go:build !unix

package watchdir

import "os"

func canList(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	return f.Close()
}
