package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lipsync-backend/cmd"
	"lipsync-backend/internal/api"
	"lipsync-backend/internal/config"
	"lipsync-backend/internal/inference"
	"lipsync-backend/internal/metrics"
	"lipsync-backend/internal/workspace"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "go.uber.org/automaxprocs"
)

// Catalog and health requests are bounded by this. Inference requests are
// bounded by QUEUE_TIMEOUT and JOB_TIMEOUT inside the runner instead.
const requestTimeout = 30 * time.Second

func createServer(cfg *config.Config) *http.Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Log requests
	r.Use(middleware.Recoverer) // Recover from panics

	runner := inference.NewRunner(inference.RunnerConfig{
		Tools: inference.ToolConfig{
			PythonBin:            cfg.PythonBin,
			Wav2LipScript:        cfg.Wav2LipScript,
			Wav2LipCheckpointDir: cfg.Wav2LipCheckpointDir,
			EsrganScript:         cfg.EsrganScript,
			EsrganModel:          cfg.EsrganModel,
		},
		MaxConcurrent: cfg.MaxConcurrentJobs,
		Timeout:       cfg.JobTimeout,
		QueueTimeout:  cfg.QueueTimeout,
	}, metrics.NewClient(cfg.StatsdAddr, cfg.StatsdTags))

	apiHandler := api.NewInferenceService(workspace.NewManager(cfg.WorkspaceRoot), runner, api.ServiceConfig{
		MaxUploadBytes:       cfg.MaxUploadBytes,
		KeepFailedWorkspaces: cfg.KeepFailedWorkspaces,
		RequestTimeout:       requestTimeout,
	})

	apiHandler.AddRoutes(r)

	return &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           r,
		ReadHeaderTimeout: 30 * time.Second,
	}
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if cfg.LogFile != "" {
		defer cmd.SetupLogFile(cfg.LogFile).Close()
	}

	if err := os.MkdirAll(cfg.WorkspaceRoot, os.ModePerm); err != nil {
		log.Fatalf("error creating workspace root %s: %v", cfg.WorkspaceRoot, err)
	}

	slog.Info("starting backend",
		"port", cfg.APIPort,
		"workspace_root", cfg.WorkspaceRoot,
		"max_concurrent_jobs", cfg.MaxConcurrentJobs,
		"job_timeout", cfg.JobTimeout,
		"queue_timeout", cfg.QueueTimeout,
		"wav2lip_script", cfg.Wav2LipScript,
		"esrgan_script", cfg.EsrganScript,
	)

	server := createServer(cfg)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	slog.Info("server stopped")
}
