package config

import "time"

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Backend names
const (
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	StorageLocal = "local"
	StorageMinio = "minio"

	DiarizerPyannote    = "pyannote"
	DiarizerAlternating = "alternating"

	TranscriberWhisperServer = "whisper_server"
	TranscriberOpenAI        = "openai"
)

// Defaults
const (
	DefaultHTTPAddr          = ":8000"
	DefaultRedisAddr         = "localhost:6379"
	DefaultJobTTL            = 24 * time.Hour
	DefaultSQLitePath        = "data/diarizer.db"
	DefaultUploadDir         = "data/uploads"
	DefaultDiarizationURL    = "http://localhost:8001"
	DefaultWhisperServerURL  = "http://localhost:8080"
	DefaultOllamaHost        = "http://localhost:11434"
	DefaultOllamaModel       = "llama3.1:8b"
	DefaultEnrichmentTimeout = 5 * time.Minute
	DefaultCallTimeout       = 60 * time.Second
	DefaultWorkerSlots       = 1
	DefaultPollInterval      = time.Second
	DefaultHeartbeatInterval = time.Minute
	DefaultStaleAfter        = 30 * time.Minute
	DefaultMaxAttempts       = 3
	DefaultReaperInterval    = time.Minute
)
