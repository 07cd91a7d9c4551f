package sdstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/creachadair/atomicfile"
)

// FileMode is the permission mode of image files written by this package.
const FileMode = 0600

// ReadFile reads the image stored at path. If path does not exist, the
// reported error satisfies errors.Is(err, fs.ErrNotExist).
func ReadFile(path string) ([]byte, error) {
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return img, nil
}

// WriteFile atomically replaces the contents of path with img, creating the
// parent directory if necessary. A reader of path sees either the previous
// image or the new one, never a partial write.
func WriteFile(path string, img []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return atomicfile.Tx(path, FileMode, func(f *atomicfile.File) error {
		_, err := f.Write(img)
		return err
	})
}

// CopyFile atomically copies the image at src to dst.
func CopyFile(src, dst string) error {
	img, err := ReadFile(src)
	if err != nil {
		return err
	}
	return WriteFile(dst, img)
}
