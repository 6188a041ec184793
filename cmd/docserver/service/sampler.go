package service

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/docvault/docvault/common/config"
	"github.com/docvault/docvault/common/logger"
)

// FFmpegSampler renders one-frame thumbnails from image/video sources
// and waveform images from audio sources
type FFmpegSampler struct {
	cfg config.TranscodeConfig
	log *logger.Logger
}

// NewFFmpegSampler creates an ffmpeg-backed thumbnail sampler
func NewFFmpegSampler(cfg config.TranscodeConfig, log *logger.Logger) *FFmpegSampler {
	return &FFmpegSampler{cfg: cfg, log: log}
}

// Sample writes a PNG no wider than maxPixels to outputPath
func (s *FFmpegSampler) Sample(ctx context.Context, inputPath, outputPath string, maxPixels int) error {
	scale := fmt.Sprintf("scale='min(%d,iw)':-2", maxPixels)

	cmd := exec.CommandContext(ctx, s.cfg.FFmpegPath,
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-vframes", "1",
		"-vf", scale,
		"-f", "image2",
		outputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		// Audio sources have no video stream to grab a frame from;
		// retry as a waveform rendering.
		wave := exec.CommandContext(ctx, s.cfg.FFmpegPath,
			"-loglevel", "error",
			"-y",
			"-i", inputPath,
			"-filter_complex", fmt.Sprintf("showwavespic=s=%dx%d", maxPixels, maxPixels/2),
			"-frames:v", "1",
			"-f", "image2",
			outputPath,
		)
		if waveOut, waveErr := wave.CombinedOutput(); waveErr != nil {
			s.log.Warn("ffmpeg sample failed", "frame_error", string(out), "wave_error", string(waveOut))
			return fmt.Errorf("ffmpeg sample: %w", waveErr)
		}
	}

	return nil
}
