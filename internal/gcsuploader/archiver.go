// Package gcsuploader archives uploaded statement files in Google Cloud
// Storage. It assumes Application Default Credentials are configured
// (gcloud auth application-default login).
package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/statement-categorizer/internal/logger"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archiver writes statement files under statements/<statement_id>/ in a bucket.
type Archiver struct {
	bucket  string
	objects objectStore
}

// NewArchiver creates an Archiver with its own storage client.
func NewArchiver(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchiver: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewArchiver: create storage client: %w", err)
	}
	return &Archiver{bucket: bucket, objects: &gcsObjects{client: client}}, nil
}

func newArchiver(bucket string, objects objectStore) *Archiver {
	return &Archiver{bucket: bucket, objects: objects}
}

// Close closes the storage client.
func (a *Archiver) Close() error {
	return a.objects.Close()
}

// ObjectName returns where a statement file is archived.
func ObjectName(statementID, filename string) string {
	base := path.Base(filepath.ToSlash(strings.TrimSpace(filename)))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "_")
	if base == "" || base == "." {
		base = "statement.csv"
	}
	return path.Join("statements", statementID, base)
}

// ArchiveStatement stores the raw bytes of an uploaded statement and returns
// the object's gs:// URI.
func (a *Archiver) ArchiveStatement(ctx context.Context, statementID, filename string, data []byte) (string, error) {
	object := ObjectName(statementID, filename)
	if err := a.write(ctx, object, contentType(filename), bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("ArchiveStatement: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	log := logger.FromContext(ctx)
	log.Debug().
		Str("statement_id", statementID).
		Str("gcs_uri", uri).
		Int("bytes", len(data)).
		Msg("Archived statement file")
	return uri, nil
}

func (a *Archiver) write(ctx context.Context, objectName, ct string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.objects.NewWriter(ctx, a.bucket, objectName, ct)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Fetch downloads the bytes behind a gs:// URI.
func (a *Archiver) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := a.objects.NewReader(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

func contentType(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == ".csv" {
		return "text/csv"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
