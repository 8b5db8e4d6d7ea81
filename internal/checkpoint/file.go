package checkpoint

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// readJSON decodes path into v. It reports false when the file does not exist.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "checkpoint: read %s", filepath.Base(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, eris.Wrapf(err, "checkpoint: decode %s", filepath.Base(path))
	}
	return true, nil
}

// writeJSON replaces path with the indented JSON encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "checkpoint: encode %s", filepath.Base(path))
	}
	return WriteFile(path, data)
}

// WriteFile replaces path with data. The data is written to a temporary file
// in the same directory, synced, then renamed over path, so a reader sees
// either the old or the new contents.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "checkpoint: create temp for %s", filepath.Base(path))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: write %s", filepath.Base(path))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: sync %s", filepath.Base(path))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: close %s", filepath.Base(path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: replace %s", filepath.Base(path))
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
