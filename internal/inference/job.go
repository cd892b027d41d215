package inference

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

type Task string

const (
	TaskLipSync Task = "wav2lip"
	TaskUpscale Task = "esrgan"
)

const upscaleSuffix = "out"

var safeToken = regexp.MustCompile(`^[\w-]+$`)

// Job describes one invocation of an external tool. OutputPath is fixed when
// the job is built so the caller never has to search for the artifact.
type Job struct {
	Task    Task
	WorkDir string

	Video string
	Audio string

	Checkpoint    Checkpoint
	UpscaleFactor UpscaleFactor
	EnhanceFace   bool

	OutputPath string
}

func NewLipSyncJob(dir, video, audio string, checkpoint Checkpoint) (Job, error) {
	job := Job{
		Task:       TaskLipSync,
		WorkDir:    dir,
		Video:      video,
		Audio:      audio,
		Checkpoint: checkpoint,
		OutputPath: filepath.Join(dir, string(checkpoint)+".mp4"),
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// NewUpscaleJob expects video to already carry the stem the download should be
// named after, since the upscaler names its output <stem>_out.mp4.
func NewUpscaleJob(dir, video string, factor UpscaleFactor, enhanceFace bool) (Job, error) {
	base := filepath.Base(video)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	job := Job{
		Task:          TaskUpscale,
		WorkDir:       dir,
		Video:         video,
		UpscaleFactor: factor,
		EnhanceFace:   enhanceFace,
		OutputPath:    filepath.Join(dir, stem+"_"+upscaleSuffix+".mp4"),
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Validate re-checks every value that ends up on the command line against the
// catalog, regardless of what the caller already checked.
func (j Job) Validate() error {
	if j.WorkDir == "" || filepath.Dir(j.OutputPath) != filepath.Clean(j.WorkDir) {
		return fmt.Errorf("%w: output must be written inside the job workspace", ErrInvalidParameter)
	}
	if j.Video == "" {
		return fmt.Errorf("%w: missing video input", ErrInvalidParameter)
	}

	switch j.Task {
	case TaskLipSync:
		if j.Audio == "" {
			return fmt.Errorf("%w: missing audio input", ErrInvalidParameter)
		}
		if !j.Checkpoint.Valid() {
			return fmt.Errorf("%w: unknown checkpoint '%s'", ErrInvalidParameter, j.Checkpoint)
		}
	case TaskUpscale:
		if !j.UpscaleFactor.Valid() {
			return fmt.Errorf("%w: unsupported upscale factor '%v'", ErrInvalidParameter, j.UpscaleFactor)
		}
		if !safeToken.MatchString(strings.TrimSuffix(filepath.Base(j.Video), filepath.Ext(j.Video))) {
			return fmt.Errorf("%w: input name '%s' must be staged under a plain identifier", ErrInvalidParameter, filepath.Base(j.Video))
		}
	default:
		return fmt.Errorf("%w: unknown task '%s'", ErrInvalidParameter, j.Task)
	}

	return nil
}

type ToolConfig struct {
	PythonBin            string
	Wav2LipScript        string
	Wav2LipCheckpointDir string
	EsrganScript         string
	EsrganModel          string
}

// Command returns the argv for job. Arguments are passed to the process as a
// vector, never through a shell.
func (c ToolConfig) Command(job Job) (string, []string, error) {
	if err := job.Validate(); err != nil {
		return "", nil, err
	}

	switch job.Task {
	case TaskLipSync:
		return c.PythonBin, []string{
			c.Wav2LipScript,
			"--checkpoint_path", filepath.Join(c.Wav2LipCheckpointDir, string(job.Checkpoint)+".pth"),
			"--face", job.Video,
			"--audio", job.Audio,
			"--outfile", job.OutputPath,
		}, nil

	case TaskUpscale:
		args := []string{
			c.EsrganScript,
			"-i", job.Video,
			"-o", filepath.Dir(job.OutputPath),
			"-n", c.EsrganModel,
			"-s", job.UpscaleFactor.String(),
			"--suffix", upscaleSuffix,
		}
		if job.EnhanceFace {
			args = append(args, "--face_enhance")
		}
		return c.PythonBin, args, nil
	}

	return "", nil, fmt.Errorf("%w: unknown task '%s'", ErrInvalidParameter, job.Task)
}
