// Package storage keeps uploaded audio between intake and the worker that
// processes it.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxNameLength caps the original file name kept in a storage key
const maxNameLength = 100

// Store holds uploads keyed by UploadKey
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Fetch copies the object to localPath
	Fetch(ctx context.Context, key, localPath string) error
	Remove(ctx context.Context, key string) error
}

// UploadKey builds "<jobID>_<name>" from the client supplied file name.
// Directory components are stripped and the name is capped.
func UploadKey(jobID, fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "upload"
	}
	for len(name) > maxNameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return jobID + "_" + name
}
