package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"lipsync-backend/pkg/api"
)

// ServeArtifact streams the file at path as an attachment named after its base
// name. Nothing is written to w when an error is returned.
func ServeArtifact(w http.ResponseWriter, r *http.Request, path string) error {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CategorizedErrorf(http.StatusNotFound, api.CategoryNotFound, "output file '%s' not found", name)
		}
		return CodedErrorf(http.StatusInternalServerError, "error opening output file '%s'", name)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return CodedErrorf(http.StatusInternalServerError, "error reading output file '%s'", name)
	}
	if info.IsDir() {
		return CategorizedErrorf(http.StatusNotFound, api.CategoryNotFound, "output file '%s' not found", name)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	slog.Info("sending output file", "path", path, "size", info.Size())
	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}
