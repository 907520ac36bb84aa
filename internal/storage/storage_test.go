package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://docs/out/README.md")
	require.NoError(t, err)
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "out/README.md", object)

	for _, bad := range []string{"gs://", "gs://bucket", "gs:///obj", "README.md"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocalGCSInputReader_OpenLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("directory: ."), 0644))

	rc, err := NewLocalGCSInputReader(nil).Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "directory: .", string(data))
}

func TestLocalGCSInputReader_GCSWithoutClient(t *testing.T) {
	_, err := NewLocalGCSInputReader(nil).Open(context.Background(), "gs://bucket/config.yaml")
	assert.Error(t, err)
}

func TestGCSFileWriter_WithoutClient(t *testing.T) {
	err := NewGCSFileWriter(nil).Write(context.Background(), "gs://bucket/README.md", "text/markdown", "# doc")
	assert.Error(t, err)
}
