package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lipsync-backend/internal/utils"
	"lipsync-backend/internal/workspace"
	"lipsync-backend/pkg/client"

	"github.com/schollz/progressbar/v3"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: client [-url URL] [-timeout D] <command> [flags]

commands:
  checkpoints                                    list checkpoints and upscale factors
  wav2lip -video FILE -audio FILE [-checkpoint NAME] [-out DIR]
  esrgan  [-scale N] [-face] [-workers N] [-out DIR] VIDEO...
`)
}

func main() {
	url := flag.String("url", "http://localhost:8000", "base url of the inference service")
	timeout := flag.Duration("timeout", 0, "overall request timeout, 0 for none")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*url, *timeout)

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "checkpoints":
		err = listCheckpoints(ctx, c)
	case "wav2lip":
		err = lipSync(ctx, c, args)
	case "esrgan":
		err = upscale(ctx, c, args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%v", err)
	}
}

func listCheckpoints(ctx context.Context, c *client.Client) error {
	catalog, err := c.Checkpoints(ctx)
	if err != nil {
		return err
	}

	for _, ckpt := range catalog.Checkpoints {
		marker := " "
		if ckpt.Name == catalog.DefaultCheckpoint {
			marker = "*"
		}
		fmt.Printf("%s %-12s %s\n", marker, ckpt.Name, ckpt.Description)
	}
	fmt.Printf("upscale factors: %v (default %v)\n", catalog.UpscaleFactors, catalog.DefaultUpscaleFactor)
	return nil
}

func lipSync(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("wav2lip", flag.ExitOnError)
	video := fs.String("video", "", "video file with the face to animate")
	audio := fs.String("audio", "", "audio file to lip-sync to")
	checkpoint := fs.String("checkpoint", "", "checkpoint name, server default if empty")
	out := fs.String("out", ".", "directory to write the result to")
	fs.Parse(args) //nolint:errcheck

	if *video == "" || *audio == "" {
		return fmt.Errorf("both -video and -audio are required")
	}

	start := time.Now()
	dl, err := c.LipSync(ctx, client.LipSyncRequest{VideoPath: *video, AudioPath: *audio, Checkpoint: *checkpoint})
	if err != nil {
		return err
	}

	path, err := dl.SaveTo(*out, withProgress(dl))
	if err != nil {
		return err
	}

	slog.Info("lip-sync complete", "output", path, "elapsed", time.Since(start))
	return nil
}

func upscale(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("esrgan", flag.ExitOnError)
	scale := fs.Float64("scale", 0, "upscale factor, server default if 0")
	face := fs.Bool("face", false, "enable face enhancement")
	workers := fs.Int("workers", 1, "number of videos to upscale concurrently")
	out := fs.String("out", ".", "directory to write results to")
	fs.Parse(args) //nolint:errcheck

	videos := fs.Args()
	if len(videos) == 0 {
		return fmt.Errorf("at least one video is required")
	}
	if err := checkUpscaleOutputs(videos); err != nil {
		return err
	}

	worker := func(video string) (string, error) {
		dl, err := c.Upscale(ctx, client.UpscaleRequest{VideoPath: video, UpscaleFactor: *scale, EnhanceFace: *face})
		if err != nil {
			return "", err
		}
		var wrap func(io.Reader) io.Reader
		if len(videos) == 1 {
			wrap = withProgress(dl)
		}
		return dl.SaveTo(*out, wrap)
	}

	failed := 0
	for task := range utils.RunInPool(worker, videos, *workers) {
		if task.Error != nil {
			failed++
			slog.Error("upscale failed", "video", task.Input, "error", task.Error)
			continue
		}
		slog.Info("upscale complete", "video", task.Input, "output", task.Result)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(videos))
	}
	return nil
}

// checkUpscaleOutputs rejects batches where two videos would be saved to the
// same output file. The server names results after the sanitized input stem.
func checkUpscaleOutputs(videos []string) error {
	seen := make(map[string]string, len(videos))
	for _, video := range videos {
		name := workspace.SanitizeStem(workspace.Stem(video)) + "_out.mp4"
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("videos %s and %s would both be saved as %s", prev, video, name)
		}
		seen[name] = video
	}
	return nil
}

func withProgress(dl *client.Download) func(io.Reader) io.Reader {
	return func(r io.Reader) io.Reader {
		bar := progressbar.DefaultBytes(dl.Size, "downloading "+dl.Filename)
		reader := progressbar.NewReader(r, bar)
		return &reader
	}
}
