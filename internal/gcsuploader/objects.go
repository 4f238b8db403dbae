package gcsuploader

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// objectStore is the slice of the GCS client the archiver uses.
type objectStore interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Close() error
}

// gcsObjects adapts *storage.Client to objectStore.
type gcsObjects struct {
	client *storage.Client
}

func (g *gcsObjects) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (g *gcsObjects) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return g.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (g *gcsObjects) Close() error {
	return g.client.Close()
}
