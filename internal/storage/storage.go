// Package storage defines the object store used for training datasets and
// prepared training artifacts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// URIScheme marks a dataset path that lives in the object store.
const URIScheme = "s3://"

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	// ContentType defaults to a guess from the key's extension.
	ContentType string
	// Metadata is stored as user metadata on the object.
	Metadata map[string]string
}

type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	UploadFile(ctx context.Context, key, localPath string, opts PutOptions) (ObjectInfo, error)
}

// KeyFromURI returns the object key of an s3:// path. Anything else is a
// local path and reports false.
func KeyFromURI(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, URIScheme) {
		return "", false
	}
	return strings.TrimPrefix(raw, URIScheme), true
}

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTrainingArtifactKey lays out prepared artifacts by day and run.
func BuildTrainingArtifactKey(runID, fileName string, createdAt time.Time) (string, error) {
	if !pathComponentPattern.MatchString(runID) {
		return "", fmt.Errorf("invalid run id: %q", runID)
	}
	if !pathComponentPattern.MatchString(fileName) {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}
	ts := createdAt.UTC()
	return path.Join(
		"training",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		runID,
		fileName,
	), nil
}
