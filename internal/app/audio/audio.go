package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// Audio is a local file handed to the segment and transcript sources
type Audio struct {
	Path     string
	Duration float64
}

// Prober reads container metadata without decoding the stream
type Prober interface {
	Probe(ctx context.Context, path string) (*model.FFProbeOutput, error)
}

// Converter produces the 16 kHz mono wav the models expect
type Converter interface {
	ConvertTo16kHzWav(ctx context.Context, inputPath string) (string, error)
}

// FFmpeg shells out to ffprobe and ffmpeg
type FFmpeg struct {
	FFprobePath string
	FFmpegPath  string
}

// NewFFmpeg resolves both binaries from PATH
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{FFprobePath: "ffprobe", FFmpegPath: "ffmpeg"}
}

// Probe runs ffprobe and decodes its json output
func (f *FFmpeg) Probe(ctx context.Context, path string) (*model.FFProbeOutput, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "quiet", "-print_format", "json", "-show_streams", "-show_format", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, apperrors.Wrapf(err, "ffprobe %s: %s", filepath.Base(path), strings.TrimSpace(stderr.String()))
	}
	return ParseProbe(output)
}

// ParseProbe decodes ffprobe json and rejects files with no audio stream
func ParseProbe(output []byte) (*model.FFProbeOutput, error) {
	var probe model.FFProbeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, apperrors.Wrap(err, "decode ffprobe output")
	}
	if !probe.HasAudio() {
		return nil, apperrors.ErrUnsupportedMedia
	}
	return &probe, nil
}

// Duration returns the container duration in seconds
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return probe.Format.Duration, nil
}

// ConvertTo16kHzWav writes <name>_16khz.wav next to the input. An existing
// output is reused.
func (f *FFmpeg) ConvertTo16kHzWav(ctx context.Context, inputPath string) (string, error) {
	outputPath := OutputPath(inputPath)
	if _, err := os.Stat(outputPath); err == nil {
		return outputPath, nil
	}

	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-y", "-i", inputPath, "-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", outputPath)

	// capture stderr, ffmpeg reports the real cause there
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return "", apperrors.Wrapf(err, "ffmpeg convert: %s", lastLine(stderr.String()))
	}
	return outputPath, nil
}

// OutputPath is where ConvertTo16kHzWav writes for a given input
func OutputPath(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "_16khz.wav"
}

// IsAudioContentType accepts any audio/* media type, parameters ignored
func IsAudioContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "audio/") && len(ct) > len("audio/")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
