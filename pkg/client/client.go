package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"lipsync-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	client *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{client: c}
}

// Error is returned for any non 2xx response from the service.
type Error struct {
	StatusCode int
	Category   string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("request failed with status %d (%s): %s", e.StatusCode, e.Category, e.Message)
}

type LipSyncRequest struct {
	VideoPath  string
	AudioPath  string
	Checkpoint string
}

type UpscaleRequest struct {
	VideoPath     string
	UpscaleFactor float64
	EnhanceFace   bool
}

// Download is a streamed output file. Body must be closed by the caller.
type Download struct {
	Filename string
	Size     int64
	Body     io.ReadCloser
}

func (c *Client) Health(ctx context.Context) error {
	res, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("error checking health: %w", err)
	}
	if res.IsError() {
		return decodeError(res.StatusCode(), res.Body())
	}
	return nil
}

func (c *Client) Checkpoints(ctx context.Context) (api.CatalogResponse, error) {
	var catalog api.CatalogResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&catalog).
		Get("/checkpoints")
	if err != nil {
		return api.CatalogResponse{}, fmt.Errorf("error listing checkpoints: %w", err)
	}
	if res.IsError() {
		return api.CatalogResponse{}, decodeError(res.StatusCode(), res.Body())
	}
	return catalog, nil
}

func (c *Client) LipSync(ctx context.Context, req LipSyncRequest) (*Download, error) {
	r := c.client.R().
		SetContext(ctx).
		SetFile("video_file", req.VideoPath).
		SetFile("audio_file", req.AudioPath)
	if req.Checkpoint != "" {
		r.SetQueryParam("checkpoint", req.Checkpoint)
	}
	return download(r, "/wav2lip")
}

func (c *Client) Upscale(ctx context.Context, req UpscaleRequest) (*Download, error) {
	r := c.client.R().
		SetContext(ctx).
		SetFile("video_file", req.VideoPath).
		SetQueryParam("enhance_face", strconv.FormatBool(req.EnhanceFace))
	if req.UpscaleFactor != 0 {
		r.SetQueryParam("upscale_factor", strconv.FormatFloat(req.UpscaleFactor, 'f', -1, 64))
	}
	return download(r, "/esrgan")
}

func download(r *resty.Request, endpoint string) (*Download, error) {
	res, err := r.SetDoNotParseResponse(true).Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", endpoint, err)
	}

	body := res.RawBody()
	if res.IsError() {
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("error reading error response from %s: %w", endpoint, err)
		}
		return nil, decodeError(res.StatusCode(), data)
	}

	name := "output.mp4"
	if _, params, err := mime.ParseMediaType(res.Header().Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}

	return &Download{Filename: name, Size: res.RawResponse.ContentLength, Body: body}, nil
}

// SaveTo writes the download into dir under its server provided name and
// closes the body.
func (d *Download) SaveTo(dir string, wrap func(io.Reader) io.Reader) (string, error) {
	defer d.Body.Close()

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("error creating output dir: %w", err)
	}

	path := filepath.Join(dir, d.Filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating output file: %w", err)
	}

	var src io.Reader = d.Body
	if wrap != nil {
		src = wrap(src)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("error writing output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("error writing output file: %w", err)
	}
	return path, nil
}

func decodeError(status int, body []byte) error {
	var res api.ErrorResponse
	if err := json.Unmarshal(body, &res); err != nil || res.Category == "" {
		return &Error{StatusCode: status, Category: api.CategoryInternal, Message: http.StatusText(status)}
	}
	return &Error{StatusCode: status, Category: res.Category, Message: res.Message}
}
