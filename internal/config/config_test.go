package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/enrichment"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWith("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, int64(50*1024*1024), cfg.Limits.MaxFileSize)
	assert.Equal(t, 1800.0, cfg.Limits.MaxAudioDuration)
	assert.Equal(t, enrichment.BackendNone, cfg.Enrichment.Backend)
	assert.Equal(t, 1, cfg.Worker.Slots)
	assert.Equal(t, 3, cfg.Reaper.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Worker.HeartbeatInterval)
}

func TestLoad_Environment(t *testing.T) {
	cfg, err := LoadWith("", envMap(map[string]string{
		"ENVIRONMENT":               "Production",
		"HTTP_ADDR":                 "0.0.0.0:9000",
		"STORE_BACKEND":             "postgres",
		"POSTGRES_DSN":              "postgres://diarizer@db/diarizer?sslmode=disable",
		"STORAGE_BACKEND":           "minio",
		"MINIO_ENDPOINT":            "minio:9000",
		"MINIO_USE_SSL":             "true",
		"TRANSCRIPTION_BACKEND":     "openai",
		"OPENAI_API_KEY":            "sk-test",
		"LLM_BACKEND":               "openai",
		"MERGE_GAP":                 "2.0",
		"WORKER_SLOTS":              "4",
		"POLL_INTERVAL":             "250ms",
		"REAPER_STALE_AFTER":        "1h",
		"WORKER_HEARTBEAT_INTERVAL": "10m",
		"JOB_TTL":                   "48h",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, StorageMinio, cfg.Storage.Backend)
	assert.True(t, cfg.Storage.Minio.UseSSL)
	assert.Equal(t, int64(100*1024*1024), cfg.Limits.MaxFileSize, "production limits")
	assert.Equal(t, 7200.0, cfg.Limits.MaxAudioDuration)
	assert.Equal(t, "sk-test", cfg.Transcription.OpenAI.APIKey)
	assert.Equal(t, "sk-test", cfg.Enrichment.OpenAI.APIKey)
	assert.Equal(t, enrichment.BackendOpenAI, cfg.Enrichment.Backend)
	assert.Equal(t, 2.0, cfg.Worker.MergeGap)
	assert.Equal(t, 4, cfg.Worker.Slots)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, time.Hour, cfg.Reaper.StaleAfter)
	assert.Equal(t, 10*time.Minute, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 48*time.Hour, cfg.Store.Redis.JobTTL)

	orch := cfg.OrchestratorConfig()
	assert.Equal(t, cfg.Limits.MaxFileSize, orch.Limits.MaxFileSize)
}

func TestLoad_OllamaEnabled(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"enabled", map[string]string{"OLLAMA_ENABLED": "true"}, enrichment.BackendOllama},
		{"disabled", map[string]string{"OLLAMA_ENABLED": "false"}, enrichment.BackendNone},
		{"explicit backend wins", map[string]string{"OLLAMA_ENABLED": "true", "LLM_BACKEND": "gemini", "GEMINI_API_KEY": "AIza-key"}, enrichment.BackendGemini},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWith("", envMap(tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Enrichment.Backend)
		})
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diarizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
store:
  backend: sqlite
  sqlite_path: /var/lib/diarizer/jobs.db
diarization:
  backend: alternating
enrichment:
  backend: ollama
  call_timeout: 90s
  ollama:
    host: ${OLLAMA_URL}
    model: mistral
worker:
  slots: 2
  merge_gap: 1.5
limits:
  max_file_size: 2048
`), 0o644))

	cfg, err := LoadWith(path, envMap(map[string]string{
		"OLLAMA_URL":   "http://gpu-box:11434",
		"WORKER_SLOTS": "3",
	}))
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/diarizer/jobs.db", cfg.Store.SQLitePath)
	assert.Equal(t, DiarizerAlternating, cfg.Diarization.Backend)
	assert.Equal(t, enrichment.BackendOllama, cfg.Enrichment.Backend)
	assert.Equal(t, 90*time.Second, cfg.Enrichment.CallTimeout)
	assert.Equal(t, "http://gpu-box:11434", cfg.Enrichment.Ollama.Host)
	assert.Equal(t, "mistral", cfg.Enrichment.Ollama.Model)
	assert.Equal(t, 3, cfg.Worker.Slots, "environment overrides the file")
	assert.Equal(t, 1.5, cfg.Worker.MergeGap)
	assert.Equal(t, int64(2048), cfg.Limits.MaxFileSize)
	assert.Equal(t, 1800.0, cfg.Limits.MaxAudioDuration, "unset limits keep defaults")
	assert.Equal(t, DefaultWhisperServerURL, cfg.Transcription.WhisperServer.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantField string
	}{
		{"bad integer", map[string]string{"WORKER_SLOTS": "many"}, "WORKER_SLOTS"},
		{"bad duration", map[string]string{"POLL_INTERVAL": "soon"}, "POLL_INTERVAL"},
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}, "store.backend"},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}, "store.postgres_dsn"},
		{"openai without key", map[string]string{"TRANSCRIPTION_BACKEND": "openai"}, "transcription.openai.api_key"},
		{"gemini without key", map[string]string{"LLM_BACKEND": "gemini"}, "enrichment.gemini.api_key"},
		{"bad whisper url", map[string]string{"WHISPER_SERVER_URL": "gpu-box:8080"}, "transcription.whisper_server.base_url"},
		{"too many slots", map[string]string{"WORKER_SLOTS": "500"}, "worker.slots"},
		{"negative merge gap", map[string]string{"MERGE_GAP": "-1"}, "worker.merge_gap"},
		{"bad addr", map[string]string{"HTTP_ADDR": "8000"}, "http_addr"},
		{"zero heartbeat", map[string]string{"WORKER_HEARTBEAT_INTERVAL": "0s"}, "worker.heartbeat_interval"},
		{"heartbeat slower than reaper", map[string]string{"WORKER_HEARTBEAT_INTERVAL": "45m"}, "worker.heartbeat_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith("", envMap(tt.env))
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
			assert.Contains(t, apperrors.FieldsOf(err), tt.wantField)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestValidateHelpers(t *testing.T) {
	assert.NoError(t, ValidateTimeout(time.Second, "x"))
	assert.Error(t, ValidateTimeout(0, "x"))
	assert.Error(t, ValidateTimeout(time.Hour, "x"))
	assert.NoError(t, ValidateConcurrency(4, "x"))
	assert.Error(t, ValidateConcurrency(0, "x"))
	assert.NoError(t, ValidateURL("https://api.openai.com", "x"))
	assert.Error(t, ValidateURL("", "x"))
	assert.NoError(t, ValidateAddr(":8000", "x"))
	assert.NoError(t, ValidateAddr("127.0.0.1:0", "x"))
	assert.Error(t, ValidateAddr("localhost:http", "x"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DIARIZER_TEST_VALUE=from-dotenv\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("DIARIZER_TEST_VALUE")
	})

	loaded, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, ".env", loaded)
	assert.Equal(t, "from-dotenv", os.Getenv("DIARIZER_TEST_VALUE"))
}

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "go.mod"))
	assert.NoError(t, err, "go.mod should exist in project root")
}
