package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"golang.org/x/sync/semaphore"
)

var (
	ErrBusy          = errors.New("inference slot unavailable")
	ErrProcessFailed = errors.New("inference process failed")
	ErrTimeout       = errors.New("inference process timed out")
	ErrMissingOutput = errors.New("inference produced no output")
	ErrCanceled      = errors.New("inference canceled")
)

type Status string

const (
	StatusSucceeded     Status = "succeeded"
	StatusRejected      Status = "rejected"
	StatusBusy          Status = "busy"
	StatusProcessFailed Status = "process_failed"
	StatusTimedOut      Status = "timed_out"
	StatusCanceled      Status = "canceled"
	StatusMissingOutput Status = "missing_output"
)

const (
	outputTailBytes = 8 * 1024
	killWaitDelay   = 5 * time.Second
)

type Result struct {
	Status     Status
	OutputPath string
	ExitCode   int
	Duration   time.Duration
	Output     string
}

type RunnerConfig struct {
	Tools         ToolConfig
	MaxConcurrent int64
	Timeout       time.Duration
	// QueueTimeout bounds the wait for a free slot. Zero waits until ctx ends.
	QueueTimeout time.Duration
}

type Runner struct {
	tools        ToolConfig
	slots        *semaphore.Weighted
	timeout      time.Duration
	queueTimeout time.Duration
	metrics      statsd.ClientInterface
}

func NewRunner(cfg RunnerConfig, metrics statsd.ClientInterface) *Runner {
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}
	return &Runner{
		tools:        cfg.Tools,
		slots:        semaphore.NewWeighted(max(cfg.MaxConcurrent, 1)),
		timeout:      cfg.Timeout,
		queueTimeout: cfg.QueueTimeout,
		metrics:      metrics,
	}
}

// Run executes job and blocks until the process exits. A nil error means the
// process exited 0 and left a non-empty file at job.OutputPath.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	res, err := r.run(ctx, job)

	tags := []string{"task:" + string(job.Task), "status:" + string(res.Status)}
	if err := r.metrics.Timing("inference.duration", res.Duration, tags, 1); err != nil {
		slog.Warn("error recording inference timing", "error", err)
	}
	if err := r.metrics.Incr("inference.result", tags, 1); err != nil {
		slog.Warn("error recording inference result", "error", err)
	}

	return res, err
}

func (r *Runner) run(ctx context.Context, job Job) (Result, error) {
	name, args, err := r.tools.Command(job)
	if err != nil {
		return Result{Status: StatusRejected}, err
	}

	if err := r.acquire(ctx); err != nil {
		return Result{Status: StatusBusy}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer r.slots.Release(1)

	if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
		return Result{Status: StatusRejected}, fmt.Errorf("error clearing output path %s: %w", job.OutputPath, err)
	}

	// wav2lip writes intermediates to ./temp, so each job runs from its own workspace
	if job.Task == TaskLipSync {
		if err := os.MkdirAll(filepath.Join(job.WorkDir, "temp"), os.ModePerm); err != nil {
			return Result{Status: StatusRejected}, fmt.Errorf("error preparing job workdir: %w", err)
		}
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output := newTailBuffer(outputTailBytes)

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = job.WorkDir
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = killWaitDelay
	startInProcessGroup(cmd)

	slog.Info("starting inference", "task", job.Task, "cmd", name, "args", args)

	start := time.Now()
	runErr := cmd.Run()

	// the slot is released on return, so nothing the tool started may outlive it
	if err := killProcessGroup(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("error killing leftover inference processes", "task", job.Task, "error", err)
	}

	res := Result{
		OutputPath: job.OutputPath,
		ExitCode:   cmd.ProcessState.ExitCode(),
		Duration:   time.Since(start),
		Output:     output.String(),
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		res.Status = StatusCanceled
		slog.Warn("inference canceled", "task", job.Task, "duration", res.Duration, "error", ctx.Err())
		return res, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())

	case runCtx.Err() != nil:
		res.Status = StatusTimedOut
		slog.Error("inference timed out", "task", job.Task, "timeout", r.timeout, "duration", res.Duration, "error", runCtx.Err(), "output", res.Output)
		return res, fmt.Errorf("%w after %v", ErrTimeout, res.Duration.Round(time.Millisecond))

	case runErr != nil:
		res.Status = StatusProcessFailed
		slog.Error("inference process failed", "task", job.Task, "exit_code", res.ExitCode, "error", runErr, "output", res.Output)
		return res, fmt.Errorf("%w: %s exited with code %d: %v", ErrProcessFailed, job.Task, res.ExitCode, runErr)
	}

	info, err := os.Stat(job.OutputPath)
	if err != nil || info.IsDir() || info.Size() == 0 {
		res.Status = StatusMissingOutput
		slog.Error("inference exited cleanly without output", "task", job.Task, "output_path", job.OutputPath, "output", res.Output)
		return res, fmt.Errorf("%w: expected %s", ErrMissingOutput, filepath.Base(job.OutputPath))
	}

	res.Status = StatusSucceeded
	slog.Info("inference completed", "task", job.Task, "duration", res.Duration, "output_path", job.OutputPath, "size", info.Size())
	return res, nil
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queueTimeout)
		defer cancel()
	}
	return r.slots.Acquire(ctx, 1)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
