package dataset

import (
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/pkg/log"
)

// Ingest copies source into dir unless dir already holds data. It returns
// the path of the ingested file and whether a copy was made. A directory
// that exists but is empty is treated like a missing one.
func Ingest(source, dir string) (string, bool, error) {
	const op = "dataset.Ingest"
	logger := log.GetLoggerWithName("dataset.ingest")
	dest := filepath.Join(dir, filepath.Base(source))

	if _, err := os.Stat(source); err != nil {
		return "", false, errors.NewIOError(op, source, err)
	}

	entries, err := os.ReadDir(dir)
	switch {
	case err == nil && len(entries) > 0:
		logger.Info("Ingestion directory is not empty, no action taken", "dir", dir)
		return dest, false, nil
	case err != nil && !os.IsNotExist(err):
		return "", false, errors.NewIOError(op, dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, errors.NewIOError(op, dir, err)
	}
	if err := copyFile(source, dest); err != nil {
		return "", false, errors.NewIOError(op, dest, err)
	}
	logger.Info("Ingested dataset", "source", source, "dest", dest)
	return dest, true, nil
}

// copyFile writes through a temp file in the destination directory and
// renames it into place.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".ingest-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
