// Package client talks to a running diarizer API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// SubmitOptions are the job parameters sent with an upload
type SubmitOptions struct {
	ExpectedSpeakers  int
	ResponseFormat    model.ResponseFormat
	EnableLLMAnalysis bool
	// ContentType overrides detection from the file extension
	ContentType string
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	keys := lo.Keys(e.Details)
	sort.Strings(keys)
	for _, k := range keys {
		msg += fmt.Sprintf("; %s %s", k, e.Details[k])
	}
	return msg
}

// Client is a thin wrapper around the job endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. A nil httpClient uses one without a global timeout
// since uploads can be large; calls are bounded by their context.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// DetectContentType guesses an audio media type from the file extension
func DetectContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return strings.SplitN(ct, ";", 2)[0]
	}
	switch ext {
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// Submit uploads path and returns the accepted job
func (c *Client) Submit(ctx context.Context, path string, opts SubmitOptions) (*dto.SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "open audio file")
	}
	defer f.Close()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = DetectContentType(path)
	}

	body, formType, err := buildForm(f, filepath.Base(path), contentType, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formType)

	var resp dto.SubmitResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func buildForm(r io.Reader, fileName, contentType string, opts SubmitOptions) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if opts.ExpectedSpeakers > 0 {
		if err := w.WriteField("expected_speakers", strconv.Itoa(opts.ExpectedSpeakers)); err != nil {
			return nil, "", err
		}
	}
	if opts.ResponseFormat != "" {
		if err := w.WriteField("response_format", string(opts.ResponseFormat)); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField("enable_llm_analysis", strconv.FormatBool(opts.EnableLLMAnalysis)); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", apperrors.Wrap(err, "read audio file")
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Get fetches a job rendered in format; empty uses the submitted format
func (c *Client) Get(ctx context.Context, id string, format model.ResponseFormat) (*dto.JobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(id, "", format), nil)
	if err != nil {
		return nil, err
	}
	var resp dto.JobResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcript downloads the encoded transcript of a completed job
func (c *Client) Transcript(ctx context.Context, id string, format model.ResponseFormat) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(id, "/transcript", format), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Delete removes a job
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.jobURL(id, "", ""), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Wait polls until the job reaches a terminal state. onUpdate, if set,
// sees every snapshot.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(*dto.JobResponse)) (*dto.JobResponse, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Get(ctx, id, model.FormatJSON)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) jobURL(id, suffix string, format model.ResponseFormat) string {
	u := c.baseURL + "/transcribe/" + url.PathEscape(id) + suffix
	if format != "" {
		u += "?format=" + url.QueryEscape(string(format))
	}
	return u
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, "decode response")
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
