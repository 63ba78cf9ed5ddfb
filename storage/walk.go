package storage

import (
	"io"
	"os"
	"path/filepath"
)

func osOpen(path string) (*os.File, error) {
	return os.Open(path)
}

// walkFiles invokes fn with the path of every regular file under dir,
// relative to dir, and an open reader for it. Hidden files and
// directories are included.
func walkFiles(dir string, fn func(relPath string, r io.Reader) error) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		return fn(rel, f)
	})
}
