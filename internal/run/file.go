package run

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// IsCompressed reports whether path names a gzip run file.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// WriteFile persists r at path, gzip-compressed when path ends in ".gz".
// The run is written to a temporary file in the same directory and
// renamed into place, so a failed write never leaves a partial file.
func WriteFile(path string, r *Run) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.IOError("creating run directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.IOError("creating temporary run file", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var gz *gzip.Writer
	if IsCompressed(path) {
		gz = gzip.NewWriter(tmp)
		w = gz
	}

	if err = Write(w, r); err != nil {
		return err
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return errors.IOError("compressing run", err)
		}
	}
	if err = tmp.Sync(); err != nil {
		return errors.IOError("syncing run file", err)
	}
	if err = tmp.Close(); err != nil {
		return errors.IOError("closing run file", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.IOError("renaming run file", err)
	}
	return nil
}

// ReadFile loads a run persisted by WriteFile or any TREC run file.
func ReadFile(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("run file " + path)
		}
		return nil, errors.IOError("opening run file", err)
	}
	defer f.Close()

	var rd io.Reader = f
	if IsCompressed(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.FormatError(filepath.Base(path), 0, "not a gzip stream")
		}
		defer gz.Close()
		rd = gz
	}

	return Read(rd, filepath.Base(path))
}
