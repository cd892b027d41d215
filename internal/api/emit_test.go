package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"lipsync-backend/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip_out.mp4")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	handler := FileHandler(func(r *http.Request) (string, error) { return path, nil })

	t.Run("Full", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename=clip_out.mp4", rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "0123456789", rec.Body.String())
	})

	t.Run("Range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Range", "bytes=2-4")
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "234", rec.Body.String())
	})
}

func TestServeArtifactQuotesFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my clip_out.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rec := httptest.NewRecorder()
	require.NoError(t, ServeArtifact(rec, httptest.NewRequest(http.MethodGet, "/", nil), path))
	assert.Equal(t, `attachment; filename="my clip_out.mp4"`, rec.Header().Get("Content-Disposition"))
}

func TestServeArtifactMissingFile(t *testing.T) {
	dir := t.TempDir()

	for _, path := range []string{filepath.Join(dir, "wav2lip.mp4"), dir} {
		handler := FileHandler(func(r *http.Request) (string, error) { return path, nil })
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Header().Get("Content-Disposition"))

		var res api.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, api.CategoryNotFound, res.Category)
	}
}

func TestWriteErrorResponse(t *testing.T) {
	cases := []struct {
		err      error
		code     int
		category string
	}{
		{CodedErrorf(http.StatusBadRequest, "bad"), http.StatusBadRequest, api.CategoryInvalidRequest},
		{CodedErrorf(http.StatusGatewayTimeout, "slow"), http.StatusGatewayTimeout, api.CategoryTimeout},
		{CategorizedErrorf(http.StatusBadGateway, api.CategoryProcessFailed, "exit 1"), http.StatusBadGateway, api.CategoryProcessFailed},
		{errors.New("plain"), http.StatusInternalServerError, api.CategoryInternal},
	}

	for _, c := range cases {
		rec := httptest.NewRecorder()
		WriteErrorResponse(rec, c.err)

		assert.Equal(t, c.code, rec.Code)
		var res api.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, c.category, res.Category)
		assert.Equal(t, c.err.Error(), res.Message)
	}
}
