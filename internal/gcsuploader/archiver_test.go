package gcsuploader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	closeErr error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

type memWriter struct {
	bytes.Buffer
	store *memObjects
	key   string
	ct    string
}

func (w *memWriter) Close() error {
	if w.store.closeErr != nil {
		return w.store.closeErr
	}
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.objects[w.key] = append([]byte(nil), w.Bytes()...)
	w.store.types[w.key] = w.ct
	return nil
}

func (m *memObjects) NewWriter(_ context.Context, bucket, object, contentType string) io.WriteCloser {
	return &memWriter{store: m, key: bucket + "/" + object, ct: contentType}
}

func (m *memObjects) NewReader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, errors.New("object doesn't exist")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Close() error { return nil }

func TestArchiveStatementRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	a := newArchiver("archive", objects)

	uri, err := a.ArchiveStatement(ctx, "stmt-1", "HDFC March.csv", []byte("Date,Narration\n"))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive/statements/stmt-1/HDFC_March.csv", uri)
	assert.Contains(t, objects.types["archive/statements/stmt-1/HDFC_March.csv"], "text/csv")

	data, err := a.Fetch(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "Date,Narration\n", string(data))
}

func TestArchiveStatementFinalizeError(t *testing.T) {
	objects := newMemObjects()
	objects.closeErr = errors.New("quota exceeded")
	a := newArchiver("archive", objects)

	_, err := a.ArchiveStatement(context.Background(), "stmt-1", "a.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalize upload")
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"statement.csv", "statements/s1/statement.csv"},
		{"../../etc/passwd", "statements/s1/passwd"},
		{"C:\\Users\\me\\sbi.csv", "statements/s1/C_Users_me_sbi.csv"},
		{"", "statements/s1/statement.csv"},
		{"  kotak (1).csv ", "statements/s1/kotak_1_.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectName("s1", tt.filename))
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://b/statements/s1/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "statements/s1/a.csv", object)

	for _, bad := range []string{"https://b/a.csv", "gs://b", "gs://b/", "gs:///a.csv"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	assert.Equal(t, "file.csv", ExtractFilenameFromGCSURI("gs://bucket/folder/file.csv"))
	assert.Equal(t, "bucket", ExtractFilenameFromGCSURI("gs://bucket"))
}
