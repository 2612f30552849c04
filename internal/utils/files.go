package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const maxNameAttempts = 100

// CreateExclusive copies src into a new file in dir named stem+ext, or
// stem_1+ext, stem_2+ext and so on when that name is taken. Existing files
// are never opened for writing. A failed copy removes the partial file.
func CreateExclusive(dir, stem, ext string, src io.Reader) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", errors.Wrapf(err, "create %s", name)
		}
		if _, err := io.Copy(f, src); err != nil {
			f.Close()
			os.Remove(path)
			return "", errors.Wrapf(err, "write %s", name)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", errors.Wrapf(err, "close %s", name)
		}
		return name, nil
	}
	return "", errors.Errorf("too many files named %s%s", stem, ext)
}
