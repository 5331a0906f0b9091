package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// PyannoteConfig points at a pyannote HTTP sidecar
type PyannoteConfig struct {
	BaseURL       string        `yaml:"base_url"`
	DiarizePath   string        `yaml:"diarize_path"` // default /diarize
	HealthPath    string        `yaml:"health_path"`  // default /health
	Timeout       time.Duration `yaml:"timeout"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

type pyannoteResponse struct {
	Segments []struct {
		SpeakerID string  `json:"speaker_id"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	} `json:"segments"`
}

// PyannoteSource calls the sidecar's diarize endpoint
type PyannoteSource struct {
	config PyannoteConfig
	client *http.Client
}

// NewPyannoteSource applies defaults
func NewPyannoteSource(config PyannoteConfig) *PyannoteSource {
	if config.DiarizePath == "" {
		config.DiarizePath = "/diarize"
	}
	if config.HealthPath == "" {
		config.HealthPath = "/health"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}
	if config.HealthTimeout == 0 {
		config.HealthTimeout = 5 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &PyannoteSource{config: config, client: &http.Client{Timeout: config.Timeout}}
}

func (s *PyannoteSource) Name() string { return "pyannote" }

// Diarize posts the file as field "audio" with an optional num_speakers
func (s *PyannoteSource) Diarize(ctx context.Context, a audio.Audio, expectedSpeakers *int) ([]model.SpeakerSegment, error) {
	body, contentType, err := multipartAudio(a.Path, expectedSpeakers)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+s.config.DiarizePath, body)
	if err != nil {
		return nil, apperrors.Wrap(err, "create diarize request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "diarize request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "read diarize response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf("diarize returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed pyannoteResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrResponseInvalid, "decode diarize response")
	}

	segments := make([]model.SpeakerSegment, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		segments = append(segments, model.SpeakerSegment{
			SpeakerID: seg.SpeakerID,
			Start:     seg.StartTime,
			End:       seg.EndTime,
		})
	}
	// zero or negative length turns carry no speech
	return lo.Filter(segments, func(s model.SpeakerSegment, _ int) bool {
		return s.Start >= 0 && s.End > s.Start
	}), nil
}

// IsAvailable probes the health endpoint
func (s *PyannoteSource) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+s.config.HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func multipartAudio(path string, expectedSpeakers *int) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(path)
	if err != nil {
		return nil, "", apperrors.Wrap(err, "open audio")
	}
	defer file.Close()

	part, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, "", apperrors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", apperrors.Wrap(err, "copy audio")
	}
	if expectedSpeakers != nil {
		if err := writer.WriteField("num_speakers", strconv.Itoa(*expectedSpeakers)); err != nil {
			return nil, "", apperrors.Wrap(err, "write num_speakers")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", apperrors.Wrap(err, "close multipart writer")
	}
	return body, writer.FormDataContentType(), nil
}
