package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// envPaths are tried in order; the first existing file wins
var envPaths = []string{
	".env",
	".env.local",
	"../.env",
	"../../.env",
}

// LoadEnv loads the first .env file found. Variables already set in the
// process environment are not overridden. It returns the loaded path, or
// "" when no file exists.
func LoadEnv() (string, error) {
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			return "", apperrors.Wrapf(err, "error loading %s file", envPath)
		}
		return envPath, nil
	}
	return "", nil
}

// GetProjectRoot finds the project root directory by looking for go.mod
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", apperrors.New("could not find project root (go.mod not found)")
}

// envReader collects parse failures so Load can report all of them at once
type envReader struct {
	lookup func(string) (string, bool)
	fields map[string]string
}

func newEnvReader(lookup func(string) (string, bool)) *envReader {
	return &envReader{lookup: lookup, fields: map[string]string{}}
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fields[key] = "must be an integer"
		return
	}
	*dst = n
}

func (r *envReader) int64(key string, dst *int64) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fields[key] = "must be an integer"
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fields[key] = "must be a number"
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fields[key] = "must be true or false"
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fields[key] = "must be a duration such as 30s or 5m"
		return
	}
	*dst = d
}

func (r *envReader) err() error {
	if len(r.fields) == 0 {
		return nil
	}
	return apperrors.Validation("invalid environment configuration", r.fields)
}
