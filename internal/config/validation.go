package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout <= 0 {
		return fmt.Errorf("%s timeout must be positive", name)
	}
	if timeout > 30*time.Minute {
		return fmt.Errorf("%s timeout too large (max 30 minutes)", name)
	}
	return nil
}

// ValidateConcurrency validates concurrency setting
func ValidateConcurrency(concurrency int, name string) error {
	if concurrency <= 0 {
		return fmt.Errorf("%s concurrency must be positive", name)
	}
	if concurrency > 100 {
		return fmt.Errorf("%s concurrency too high (max 100)", name)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(url string, name string) error {
	if url == "" {
		return fmt.Errorf("%s URL is required", name)
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%s URL must start with http:// or https://", name)
	}

	return nil
}

// ValidateAddr validates a host:port listen address; the host may be empty
func ValidateAddr(addr string, name string) error {
	if addr == "" {
		return fmt.Errorf("%s address is required", name)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s address invalid: %v", name, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%s port invalid", name)
	}
	return nil
}

func oneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
}

// Validate checks the whole configuration and reports every problem keyed
// by section
func (c *Config) Validate() error {
	fields := map[string]string{}
	check := func(key string, err error) {
		if err != nil {
			fields[key] = err.Error()
		}
	}

	check("environment", oneOf(c.Environment, EnvDevelopment, EnvProduction))
	check("http_addr", ValidateAddr(c.HTTPAddr, "HTTP"))

	check("store.backend", oneOf(c.Store.Backend, StoreRedis, StoreSQLite, StorePostgres, StoreMemory))
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			fields["store.sqlite_path"] = "is required for the sqlite store"
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			fields["store.postgres_dsn"] = "is required for the postgres store"
		}
	}

	check("storage.backend", oneOf(c.Storage.Backend, StorageLocal, StorageMinio))
	if c.Storage.Backend == StorageLocal && c.Storage.UploadDir == "" {
		fields["storage.upload_dir"] = "is required for local storage"
	}

	if c.Limits.MaxFileSize <= 0 {
		fields["limits.max_file_size"] = "must be positive"
	}
	if c.Limits.MaxAudioDuration <= 0 {
		fields["limits.max_audio_duration"] = "must be positive"
	}

	check("diarization.backend", oneOf(c.Diarization.Backend, DiarizerPyannote, DiarizerAlternating))
	if c.Diarization.Backend == DiarizerPyannote {
		check("diarization.pyannote.base_url", ValidateURL(c.Diarization.Pyannote.BaseURL, "diarization"))
	}

	check("transcription.backend", oneOf(c.Transcription.Backend, TranscriberWhisperServer, TranscriberOpenAI))
	switch c.Transcription.Backend {
	case TranscriberWhisperServer:
		check("transcription.whisper_server.base_url", ValidateURL(c.Transcription.WhisperServer.BaseURL, "whisper server"))
	case TranscriberOpenAI:
		if c.Transcription.OpenAI.APIKey == "" {
			fields["transcription.openai.api_key"] = "is required for openai transcription"
		}
	}

	check("enrichment.backend", oneOf(c.Enrichment.Backend,
		enrichment.BackendNone, enrichment.BackendOllama, enrichment.BackendOpenAI, enrichment.BackendGemini))
	switch c.Enrichment.Backend {
	case enrichment.BackendOllama:
		check("enrichment.ollama.host", ValidateURL(c.Enrichment.Ollama.Host, "ollama"))
	case enrichment.BackendGemini:
		if c.Enrichment.Gemini.APIKey == "" {
			fields["enrichment.gemini.api_key"] = "is required for gemini enrichment"
		}
	}
	check("enrichment.call_timeout", ValidateTimeout(c.Enrichment.CallTimeout, "enrichment call"))

	check("worker.slots", ValidateConcurrency(c.Worker.Slots, "worker"))
	check("worker.enrichment_timeout", ValidateTimeout(c.Worker.EnrichmentTimeout, "enrichment"))
	if c.Worker.PollInterval <= 0 {
		fields["worker.poll_interval"] = "must be positive"
	}
	if c.Worker.MergeGap < 0 {
		fields["worker.merge_gap"] = "cannot be negative"
	}

	if c.Reaper.StaleAfter <= 0 {
		fields["reaper.stale_after"] = "must be positive"
	}
	switch {
	case c.Worker.HeartbeatInterval <= 0:
		fields["worker.heartbeat_interval"] = "must be positive"
	case c.Reaper.StaleAfter > 0 && c.Worker.HeartbeatInterval >= c.Reaper.StaleAfter:
		fields["worker.heartbeat_interval"] = "must be shorter than reaper.stale_after"
	}
	if c.Reaper.MaxAttempts < 1 {
		fields["reaper.max_attempts"] = "must be at least 1"
	}
	if c.Reaper.Interval <= 0 {
		fields["reaper.interval"] = "must be positive"
	}

	if len(fields) > 0 {
		return apperrors.Validation("invalid configuration", fields)
	}
	return nil
}
