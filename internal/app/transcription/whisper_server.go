package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/audio"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// WhisperServerConfig configures a whisper.cpp server sidecar
type WhisperServerConfig struct {
	BaseURL       string            `yaml:"base_url"`       // e.g. http://192.168.1.100:8080
	InferencePath string            `yaml:"inference_path"` // default /inference
	Timeout       time.Duration     `yaml:"timeout"`
	Language      string            `yaml:"language"`
	Temperature   float64           `yaml:"temperature"`
	WordLevel     bool              `yaml:"word_level"` // one span per word when the server returns words
	CustomHeaders map[string]string `yaml:"custom_headers"`
}

// WhisperServerResponse is the verbose_json body
type WhisperServerResponse struct {
	Text     string                 `json:"text,omitempty"`
	Language string                 `json:"language,omitempty"`
	Duration float64                `json:"duration,omitempty"`
	Segments []WhisperServerSegment `json:"segments,omitempty"`
}

// WhisperServerSegment represents a segment in verbose response
type WhisperServerSegment struct {
	ID           int                 `json:"id"`
	Text         string              `json:"text"`
	Start        float64             `json:"start"`
	End          float64             `json:"end"`
	Words        []WhisperServerWord `json:"words,omitempty"`
	AvgLogprob   float64             `json:"avg_logprob,omitempty"`
	NoSpeechProb float64             `json:"no_speech_prob,omitempty"`
}

// WhisperServerWord represents a word in segment
type WhisperServerWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// WhisperServerSource transcribes through whisper-server's HTTP API
type WhisperServerSource struct {
	config WhisperServerConfig
	client *http.Client
}

// NewWhisperServerSource applies defaults and builds the HTTP client
func NewWhisperServerSource(config WhisperServerConfig) *WhisperServerSource {
	if config.InferencePath == "" {
		config.InferencePath = "/inference"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &WhisperServerSource{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (s *WhisperServerSource) Name() string { return "whisper_server" }

// Transcribe uploads the file and converts verbose_json segments to spans
func (s *WhisperServerSource) Transcribe(ctx context.Context, a audio.Audio) ([]model.TranscriptSpan, error) {
	body, contentType, err := s.createMultipartForm(a.Path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+s.config.InferencePath, body)
	if err != nil {
		return nil, apperrors.Wrap(err, "create whisper-server request")
	}
	req.Header.Set("Content-Type", contentType)
	for key, value := range s.config.CustomHeaders {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "whisper-server request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "read whisper-server response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf("whisper-server returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed WhisperServerResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrResponseInvalid, "decode whisper-server response")
	}
	return s.toSpans(parsed.Segments), nil
}

func (s *WhisperServerSource) toSpans(segments []WhisperServerSegment) []model.TranscriptSpan {
	spans := make([]model.TranscriptSpan, 0, len(segments))
	for _, seg := range segments {
		if s.config.WordLevel && len(seg.Words) > 0 {
			for _, w := range seg.Words {
				if span, ok := newSpan(w.Word, w.Start, w.End, w.Probability); ok {
					spans = append(spans, span)
				}
			}
			continue
		}
		if span, ok := newSpan(seg.Text, seg.Start, seg.End, LogprobConfidence(seg.AvgLogprob)); ok {
			spans = append(spans, span)
		}
	}
	return spans
}

func (s *WhisperServerSource) createMultipartForm(path string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(path)
	if err != nil {
		return nil, "", apperrors.Wrap(err, "open audio")
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", apperrors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", apperrors.Wrap(err, "copy audio")
	}

	params := map[string]string{
		"response_format": "verbose_json",
		"temperature":     fmt.Sprintf("%.2f", s.config.Temperature),
	}
	if s.config.Language != "" {
		params["language"] = s.config.Language
	}
	for key, value := range params {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", apperrors.Wrapf(err, "write field %s", key)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", apperrors.Wrap(err, "close multipart writer")
	}
	return body, writer.FormDataContentType(), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
