package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/apperrors"
)

// Transcoder converts a video file into an H.264/AAC mp4.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// FFmpegTranscoder runs the ffmpeg binary found at Path.
type FFmpegTranscoder struct {
	Path string
}

func NewFFmpegTranscoder(path string) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegTranscoder{Path: path}
}

func (t *FFmpegTranscoder) args(src, dst string) []string {
	return []string{"-y", "-loglevel", "error", "-i", src, "-c:v", "libx264", "-c:a", "aac", dst}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string) error {
	log.Infof("🎞️ Converting %s → %s", src, dst)

	out, err := exec.CommandContext(ctx, t.Path, t.args(src, dst)...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		return apperrors.NewMedia("transcode", src, fmt.Errorf("%w: %s", err, msg))
	}
	return nil
}
