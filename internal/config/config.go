package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultWorkspaceDir = "/workspace"

type Config struct {
	APIPort     string `env:"API_PORT" envDefault:"8000"`
	CorsOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
	LogFile     string `env:"LOG_FILE"`

	// WorkspaceRoot holds one subdirectory per request. When unset it resolves
	// to /workspace if that exists, otherwise the OS temp dir.
	WorkspaceRoot        string `env:"WORKSPACE_ROOT"`
	KeepFailedWorkspaces bool   `env:"KEEP_FAILED_WORKSPACES" envDefault:"true"`
	MaxUploadBytes       int64  `env:"MAX_UPLOAD_BYTES" envDefault:"2147483648"`

	MaxConcurrentJobs int64         `env:"MAX_CONCURRENT_JOBS" envDefault:"1"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT" envDefault:"30m"`
	// QueueTimeout bounds how long a request waits for a free job slot. It is
	// not counted against JobTimeout. Zero waits until the client disconnects.
	QueueTimeout time.Duration `env:"QUEUE_TIMEOUT" envDefault:"30m"`

	PythonBin            string `env:"PYTHON_BIN" envDefault:"python3"`
	Wav2LipScript        string `env:"WAV2LIP_SCRIPT" envDefault:"/app/inference.py"`
	Wav2LipCheckpointDir string `env:"WAV2LIP_CHECKPOINT_DIR" envDefault:"/app/checkpoints"`
	EsrganScript         string `env:"ESRGAN_SCRIPT" envDefault:"/app/Real-ESRGAN/inference_realesrgan_video.py"`
	EsrganModel          string `env:"ESRGAN_MODEL" envDefault:"RealESRGAN_x4plus"`

	StatsdAddr string   `env:"STATSD_ADDR"`
	StatsdTags []string `env:"STATSD_TAGS" envSeparator:","`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = defaultWorkspaceRoot()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive, got %v", c.JobTimeout)
	}
	if c.QueueTimeout < 0 {
		return fmt.Errorf("QUEUE_TIMEOUT must not be negative, got %v", c.QueueTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if strings.TrimSpace(c.PythonBin) == "" {
		return fmt.Errorf("PYTHON_BIN must not be empty")
	}
	return nil
}

func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CorsOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func defaultWorkspaceRoot() string {
	if info, err := os.Stat(defaultWorkspaceDir); err == nil && info.IsDir() {
		return defaultWorkspaceDir
	}
	slog.Info("workspace dir not found, falling back to temp dir", "dir", defaultWorkspaceDir)
	return os.TempDir()
}
