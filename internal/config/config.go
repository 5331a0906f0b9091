package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/diarization"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/orchestrator"
	jobredis "github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/redis"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/storage"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/transcription"
)

// Config is the full service configuration. It is built from defaults, an
// optional YAML file and environment variables, in that order.
type Config struct {
	Environment   string              `yaml:"environment"`
	HTTPAddr      string              `yaml:"http_addr"`
	Store         StoreConfig         `yaml:"store"`
	Storage       StorageConfig       `yaml:"storage"`
	Limits        LimitsConfig        `yaml:"limits"`
	Diarization   DiarizationConfig   `yaml:"diarization"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Enrichment    enrichment.Config   `yaml:"enrichment"`
	Worker        WorkerConfig        `yaml:"worker"`
	Reaper        ReaperConfig        `yaml:"reaper"`
}

// StoreConfig selects the job store
type StoreConfig struct {
	Backend     string          `yaml:"backend"`
	Redis       jobredis.Config `yaml:"redis"`
	SQLitePath  string          `yaml:"sqlite_path"`
	PostgresDSN string          `yaml:"postgres_dsn"`
}

// StorageConfig selects where uploads are kept until processed
type StorageConfig struct {
	Backend   string              `yaml:"backend"`
	UploadDir string              `yaml:"upload_dir"`
	Minio     storage.MinioConfig `yaml:"minio"`
}

// LimitsConfig bounds submissions. Zero values take the environment's
// defaults.
type LimitsConfig struct {
	MaxFileSize      int64   `yaml:"max_file_size"`
	MaxAudioDuration float64 `yaml:"max_audio_duration"`
}

// DiarizationConfig selects the speaker segmentation source
type DiarizationConfig struct {
	Backend  string                     `yaml:"backend"`
	Pyannote diarization.PyannoteConfig `yaml:"pyannote"`
}

// TranscriptionConfig selects the speech recognition source
type TranscriptionConfig struct {
	Backend       string                            `yaml:"backend"`
	WhisperServer transcription.WhisperServerConfig `yaml:"whisper_server"`
	OpenAI        transcription.OpenAIConfig        `yaml:"openai"`
}

// WorkerConfig tunes the processing pool
type WorkerConfig struct {
	Slots             int           `yaml:"slots"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MergeGap          float64       `yaml:"merge_gap"`
	EnrichmentTimeout time.Duration `yaml:"enrichment_timeout"`
	TempDir           string        `yaml:"temp_dir"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// ReaperConfig tunes orphan recovery
type ReaperConfig struct {
	StaleAfter  time.Duration `yaml:"stale_after"`
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// Default returns a configuration that runs against local services
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		HTTPAddr:    DefaultHTTPAddr,
		Store: StoreConfig{
			Backend:    StoreRedis,
			Redis:      jobredis.Config{Addr: DefaultRedisAddr, JobTTL: DefaultJobTTL},
			SQLitePath: DefaultSQLitePath,
		},
		Storage: StorageConfig{
			Backend:   StorageLocal,
			UploadDir: DefaultUploadDir,
		},
		Diarization: DiarizationConfig{
			Backend:  DiarizerPyannote,
			Pyannote: diarization.PyannoteConfig{BaseURL: DefaultDiarizationURL},
		},
		Transcription: TranscriptionConfig{
			Backend:       TranscriberWhisperServer,
			WhisperServer: transcription.WhisperServerConfig{BaseURL: DefaultWhisperServerURL},
		},
		Enrichment: enrichment.Config{
			Backend:     enrichment.BackendNone,
			CallTimeout: DefaultCallTimeout,
			Ollama:      enrichment.OllamaConfig{Host: DefaultOllamaHost, Model: DefaultOllamaModel},
		},
		Worker: WorkerConfig{
			Slots:             DefaultWorkerSlots,
			PollInterval:      DefaultPollInterval,
			EnrichmentTimeout: DefaultEnrichmentTimeout,
			HeartbeatInterval: DefaultHeartbeatInterval,
		},
		Reaper: ReaperConfig{
			StaleAfter:  DefaultStaleAfter,
			MaxAttempts: DefaultMaxAttempts,
			Interval:    DefaultReaperInterval,
		},
	}
}

// Load reads configPath (optional) and the process environment
func Load(configPath string) (*Config, error) {
	return LoadWith(configPath, os.LookupEnv)
}

// LoadWith is Load with an injectable environment lookup
func LoadWith(configPath string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if err := cfg.overlayFile(configPath, lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.finalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile decodes YAML over the current values. ${VAR} references in
// the file are expanded first.
func (c *Config) overlayFile(configPath string, lookup func(string) (string, bool)) error {
	data, err := os.ReadFile(os.ExpandEnv(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.Newf("config file not found: %s", configPath)
		}
		return apperrors.Wrap(err, "failed to read config file")
	}
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return apperrors.Wrap(err, "failed to parse YAML")
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	r := newEnvReader(lookup)

	r.str("ENVIRONMENT", &c.Environment)
	r.str("HTTP_ADDR", &c.HTTPAddr)

	r.str("STORE_BACKEND", &c.Store.Backend)
	r.str("REDIS_ADDR", &c.Store.Redis.Addr)
	r.str("REDIS_PASSWORD", &c.Store.Redis.Password)
	r.integer("REDIS_DB", &c.Store.Redis.DB)
	r.duration("JOB_TTL", &c.Store.Redis.JobTTL)
	r.str("SQLITE_PATH", &c.Store.SQLitePath)
	r.str("POSTGRES_DSN", &c.Store.PostgresDSN)

	r.str("STORAGE_BACKEND", &c.Storage.Backend)
	r.str("UPLOAD_DIR", &c.Storage.UploadDir)
	r.str("MINIO_ENDPOINT", &c.Storage.Minio.Endpoint)
	r.str("MINIO_ACCESS_KEY", &c.Storage.Minio.AccessKey)
	r.str("MINIO_SECRET_KEY", &c.Storage.Minio.SecretKey)
	r.str("MINIO_BUCKET", &c.Storage.Minio.Bucket)
	r.boolean("MINIO_USE_SSL", &c.Storage.Minio.UseSSL)

	r.int64("MAX_FILE_SIZE", &c.Limits.MaxFileSize)
	r.float("MAX_AUDIO_DURATION", &c.Limits.MaxAudioDuration)

	r.str("DIARIZATION_BACKEND", &c.Diarization.Backend)
	r.str("DIARIZATION_URL", &c.Diarization.Pyannote.BaseURL)

	r.str("TRANSCRIPTION_BACKEND", &c.Transcription.Backend)
	r.str("WHISPER_SERVER_URL", &c.Transcription.WhisperServer.BaseURL)
	r.str("WHISPER_LANGUAGE", &c.Transcription.WhisperServer.Language)
	r.str("OPENAI_API_KEY", &c.Transcription.OpenAI.APIKey)
	r.str("OPENAI_BASE_URL", &c.Transcription.OpenAI.BaseURL)
	r.str("OPENAI_API_KEY", &c.Enrichment.OpenAI.APIKey)
	r.str("OPENAI_BASE_URL", &c.Enrichment.OpenAI.BaseURL)
	r.str("OPENAI_CHAT_MODEL", &c.Enrichment.OpenAI.Model)

	var ollamaEnabled bool
	if _, set := r.get("OLLAMA_ENABLED"); set {
		r.boolean("OLLAMA_ENABLED", &ollamaEnabled)
		switch {
		case ollamaEnabled && c.Enrichment.Backend == enrichment.BackendNone:
			c.Enrichment.Backend = enrichment.BackendOllama
		case !ollamaEnabled && c.Enrichment.Backend == enrichment.BackendOllama:
			c.Enrichment.Backend = enrichment.BackendNone
		}
	}
	r.str("LLM_BACKEND", &c.Enrichment.Backend)
	r.str("OLLAMA_HOST", &c.Enrichment.Ollama.Host)
	r.str("OLLAMA_MODEL", &c.Enrichment.Ollama.Model)
	r.str("GEMINI_API_KEY", &c.Enrichment.Gemini.APIKey)
	r.str("GEMINI_MODEL", &c.Enrichment.Gemini.Model)
	r.duration("ENRICHMENT_TIMEOUT", &c.Worker.EnrichmentTimeout)

	r.float("MERGE_GAP", &c.Worker.MergeGap)
	r.integer("WORKER_SLOTS", &c.Worker.Slots)
	r.duration("POLL_INTERVAL", &c.Worker.PollInterval)
	r.str("WORKER_TEMP_DIR", &c.Worker.TempDir)
	r.duration("WORKER_HEARTBEAT_INTERVAL", &c.Worker.HeartbeatInterval)

	r.duration("REAPER_STALE_AFTER", &c.Reaper.StaleAfter)
	r.integer("REAPER_MAX_ATTEMPTS", &c.Reaper.MaxAttempts)
	r.duration("REAPER_INTERVAL", &c.Reaper.Interval)

	return r.err()
}

func (c *Config) finalize() {
	c.Environment = strings.ToLower(c.Environment)
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.Diarization.Backend = strings.ToLower(c.Diarization.Backend)
	c.Transcription.Backend = strings.ToLower(c.Transcription.Backend)
	c.Enrichment.Backend = strings.ToLower(c.Enrichment.Backend)

	defaults := orchestrator.DevelopmentLimits()
	if c.IsProduction() {
		defaults = orchestrator.ProductionLimits()
	}
	if c.Limits.MaxFileSize == 0 {
		c.Limits.MaxFileSize = defaults.MaxFileSize
	}
	if c.Limits.MaxAudioDuration == 0 {
		c.Limits.MaxAudioDuration = defaults.MaxAudioDuration
	}
}

// IsProduction reports whether the production profile is active
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// OrchestratorConfig converts the relevant sections
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Limits: orchestrator.Limits{
			MaxFileSize:      c.Limits.MaxFileSize,
			MaxAudioDuration: c.Limits.MaxAudioDuration,
		},
		TempDir: c.Worker.TempDir,
	}
}
