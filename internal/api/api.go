package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"lipsync-backend/internal/inference"
	"lipsync-backend/internal/workspace"
	"lipsync-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	videoField = "video_file"
	audioField = "audio_file"
)

type JobRunner interface {
	Run(ctx context.Context, job inference.Job) (inference.Result, error)
}

type ServiceConfig struct {
	MaxUploadBytes       int64
	KeepFailedWorkspaces bool
	// RequestTimeout bounds the non-inference routes. Zero disables it.
	RequestTimeout time.Duration
}

type InferenceService struct {
	workspaces *workspace.Manager
	runner     JobRunner
	cfg        ServiceConfig
}

func NewInferenceService(workspaces *workspace.Manager, runner JobRunner, cfg ServiceConfig) *InferenceService {
	return &InferenceService{workspaces: workspaces, runner: runner, cfg: cfg}
}

func (s *InferenceService) AddRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
		r.Get("/checkpoints", RestHandler(s.GetCatalog))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.limitUploadSize)
		r.Post("/wav2lip", FileHandler(s.LipSync))
		r.Post("/esrgan", FileHandler(s.Upscale))
	})
}

func (s *InferenceService) limitUploadSize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *InferenceService) GetCatalog(r *http.Request) (any, error) {
	catalog := inference.GetCatalog()

	res := api.CatalogResponse{
		DefaultCheckpoint:    string(inference.DefaultCheckpoint()),
		DefaultUpscaleFactor: float64(catalog.DefaultUpscaleFactor),
	}
	for _, ckpt := range catalog.Checkpoints {
		res.Checkpoints = append(res.Checkpoints, api.Checkpoint{Name: string(ckpt.Name), Description: ckpt.Description})
	}
	for _, f := range catalog.UpscaleFactors {
		res.UpscaleFactors = append(res.UpscaleFactors, float64(f))
	}

	return res, nil
}

func (s *InferenceService) LipSync(r *http.Request) (string, error) {
	params, err := ParseRequestQueryParams[api.LipSyncParams](r)
	if err != nil {
		return "", err
	}

	checkpoint, err := inference.ParseCheckpoint(params.Checkpoint)
	if err != nil {
		return "", CodedError(http.StatusBadRequest, err)
	}

	return s.withWorkspace(func(ws *workspace.Workspace) (string, error) {
		assets, err := receiveUploads(r, ws, videoField, audioField)
		if err != nil {
			return "", err
		}

		job, err := inference.NewLipSyncJob(ws.Dir, assets[videoField].Path, assets[audioField].Path, checkpoint)
		if err != nil {
			return "", CodedError(http.StatusBadRequest, err)
		}

		slog.Info("creating wav2lip",
			"workspace", ws.ID,
			"video", assets[videoField].Path,
			"audio", assets[audioField].Path,
			"checkpoint", checkpoint,
			"outfile", job.OutputPath,
		)

		return s.run(r.Context(), job)
	})
}

func (s *InferenceService) Upscale(r *http.Request) (string, error) {
	params, err := ParseRequestQueryParams[api.UpscaleParams](r)
	if err != nil {
		return "", err
	}

	factor := inference.DefaultUpscaleFactor()
	if params.UpscaleFactor != nil {
		factor, err = inference.ParseUpscaleFactor(*params.UpscaleFactor)
		if err != nil {
			return "", CodedError(http.StatusBadRequest, err)
		}
	}
	enhanceFace := params.EnhanceFace != nil && *params.EnhanceFace

	return s.withWorkspace(func(ws *workspace.Workspace) (string, error) {
		assets, err := receiveUploads(r, ws, videoField)
		if err != nil {
			return "", err
		}
		video := assets[videoField]

		staged, err := ws.Stage(video, workspace.Stem(video.OriginalName))
		if err != nil {
			return "", CategorizedErrorf(http.StatusInternalServerError, api.CategoryUploadFailed, "unable to stage uploaded video")
		}

		job, err := inference.NewUpscaleJob(ws.Dir, staged, factor, enhanceFace)
		if err != nil {
			return "", CodedError(http.StatusBadRequest, err)
		}

		slog.Info("creating esrgan upscale",
			"workspace", ws.ID,
			"video", staged,
			"upscale_factor", factor,
			"enhance_face", enhanceFace,
			"outfile", job.OutputPath,
		)

		return s.run(r.Context(), job)
	})
}

func (s *InferenceService) withWorkspace(handler func(ws *workspace.Workspace) (string, error)) (string, error) {
	ws, err := s.workspaces.Create()
	if err != nil {
		slog.Error("error creating request workspace", "error", err)
		return "", CategorizedErrorf(http.StatusInternalServerError, api.CategoryUploadFailed, "unable to create request workspace")
	}

	path, err := handler(ws)
	if err != nil && !s.cfg.KeepFailedWorkspaces {
		if rerr := ws.Remove(); rerr != nil {
			slog.Warn("error removing failed workspace", "workspace", ws.ID, "error", rerr)
		}
	}
	return path, err
}

func (s *InferenceService) run(ctx context.Context, job inference.Job) (string, error) {
	res, err := s.runner.Run(ctx, job)
	if err != nil {
		return "", inferenceError(err)
	}
	return res.OutputPath, nil
}

func inferenceError(err error) error {
	switch {
	case errors.Is(err, inference.ErrInvalidParameter):
		return CategorizedErrorf(http.StatusBadRequest, api.CategoryInvalidRequest, "%v", err)
	case errors.Is(err, inference.ErrBusy):
		return CategorizedErrorf(http.StatusServiceUnavailable, api.CategoryBusy, "no inference slot became available, try again later")
	case errors.Is(err, inference.ErrTimeout):
		return CategorizedErrorf(http.StatusGatewayTimeout, api.CategoryTimeout, "%v", err)
	case errors.Is(err, inference.ErrProcessFailed):
		return CategorizedErrorf(http.StatusBadGateway, api.CategoryProcessFailed, "%v", err)
	case errors.Is(err, inference.ErrMissingOutput):
		return CategorizedErrorf(http.StatusBadGateway, api.CategoryMissingOutput, "%v", err)
	case errors.Is(err, inference.ErrCanceled):
		return CategorizedErrorf(http.StatusRequestTimeout, api.CategoryCanceled, "%v", err)
	default:
		return CodedError(http.StatusInternalServerError, fmt.Errorf("inference failed: %w", err))
	}
}

// receiveUploads streams each named file field of the multipart body into ws.
// Every field must be present exactly once. Other parts are discarded.
func receiveUploads(r *http.Request, ws *workspace.Workspace, fields ...string) (map[string]workspace.Asset, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "expected multipart/form-data body: %v", err)
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	assets := make(map[string]workspace.Asset, len(fields))
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, uploadError(err)
		}

		name := part.FormName()
		if !wanted[name] {
			if _, err := io.Copy(io.Discard, part); err != nil {
				part.Close()
				return nil, uploadError(err)
			}
			part.Close()
			continue
		}

		if _, ok := assets[name]; ok {
			part.Close()
			return nil, CodedErrorf(http.StatusBadRequest, "field '%s' provided more than once", name)
		}
		if part.FileName() == "" {
			part.Close()
			return nil, CodedErrorf(http.StatusBadRequest, "field '%s' must be a file upload", name)
		}

		asset, err := ws.Save(part.FileName(), part)
		if err != nil {
			return nil, uploadError(err)
		}
		assets[name] = asset
	}

	for _, f := range fields {
		if _, ok := assets[f]; !ok {
			return nil, CodedErrorf(http.StatusBadRequest, "missing required file field '%s'", f)
		}
	}

	return assets, nil
}

func uploadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return CategorizedErrorf(http.StatusRequestEntityTooLarge, api.CategoryPayloadTooLarge, "upload exceeds limit of %d bytes", maxBytesErr.Limit)
	}
	if errors.Is(err, workspace.ErrUploadFailed) {
		return CategorizedErrorf(http.StatusInternalServerError, api.CategoryUploadFailed, "unable to save uploaded file")
	}
	return CodedErrorf(http.StatusBadRequest, "malformed multipart body: %v", err)
}
