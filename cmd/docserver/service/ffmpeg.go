package service

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/docvault/docvault/common/config"
	"github.com/docvault/docvault/common/logger"
)

const maxStderrPreview = 512

// FFmpegRunner invokes ffmpeg to produce browser-playable renditions.
// Progress is emitted as periodic key=value lines to the per-job
// callback URL (-progress), terminated by progress=end.
type FFmpegRunner struct {
	cfg config.TranscodeConfig
	log *logger.Logger
}

// NewFFmpegRunner creates an ffmpeg-backed transcode runner
func NewFFmpegRunner(cfg config.TranscodeConfig, log *logger.Logger) *FFmpegRunner {
	return &FFmpegRunner{cfg: cfg, log: log}
}

// Run transcodes inputPath into outputPath. Video sources become
// H.264/AAC MP4, audio sources become MP3.
func (r *FFmpegRunner) Run(ctx context.Context, inputPath, outputPath, progressURL string, video bool) error {
	args := []string{
		"-loglevel", "error",
		"-nostats",
		"-y",
		"-i", inputPath,
		"-progress", progressURL,
	}

	if video {
		args = append(args,
			"-c:v", "libx264",
			"-crf", strconv.Itoa(r.cfg.VideoCRF),
			"-preset", "fast",
			"-c:a", "aac",
			"-movflags", "+faststart",
			"-f", "mp4",
		)
	} else {
		args = append(args,
			"-vn",
			"-c:a", "libmp3lame",
			"-b:a", r.cfg.AudioBitrate,
			"-f", "mp3",
		)
	}
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, r.cfg.FFmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	// Drain stderr so ffmpeg can't block on a full pipe; keep a preview
	// for the failure log.
	errOut, _ := io.ReadAll(stderr)
	if len(errOut) > maxStderrPreview {
		errOut = errOut[:maxStderrPreview]
	}

	if err := cmd.Wait(); err != nil {
		if len(errOut) > 0 {
			r.log.Warn("ffmpeg stderr", "output", string(errOut))
		}
		return fmt.Errorf("ffmpeg exit: %w", err)
	}

	return nil
}
