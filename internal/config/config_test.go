package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/code-doc-reducer-go/internal/storage"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "README.md", cfg.OutputFile)
	assert.Equal(t, 400000, cfg.MaxChars)
	assert.Equal(t, 90000, cfg.MaxWords)
	assert.Equal(t, 3, cfg.ChunkLimit)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.Cooldown)
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.BaseDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), storage.NewLocalGCSInputReader(nil), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docgen.yaml")
	content := `
directory: ./src
file_extensions: [".go", ".mod"]
provider: gemini
batch_size: 4
cooldown: 90s
max_chars: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(context.Background(), storage.NewLocalGCSInputReader(nil), path)
	require.NoError(t, err)
	assert.Equal(t, "./src", cfg.Directory)
	assert.Equal(t, []string{".go", ".mod"}, cfg.FileExtensions)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, 4, cfg.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Cooldown)
	assert.Equal(t, 1000, cfg.MaxChars)
	// 指定されていない値は既定値のまま
	assert.Equal(t, 90000, cfg.MaxWords)
	assert.Equal(t, Default().ExcludeFolders, cfg.ExcludeFolders)
}

func TestLoad_UnknownFieldIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batchsize: 3\n"), 0644))

	_, err := Load(context.Background(), storage.NewLocalGCSInputReader(nil), path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), storage.NewLocalGCSInputReader(nil), filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 0
	cfg.MaxAttempts = 0
	cfg.JitterMin = 20 * time.Second
	cfg.Provider = "openai"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "jitter_min")
	assert.Contains(t, err.Error(), "openai")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{EnvAWSRegion: "eu-west-1", EnvGoogleProject: "my-proj"}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "my-proj", cfg.Project)
	assert.Equal(t, Default().Location, cfg.Location)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, ".env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CODE_DOC_REDUCER_TEST_KEY=value\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CODE_DOC_REDUCER_TEST_KEY") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "value", os.Getenv("CODE_DOC_REDUCER_TEST_KEY"))
}

func TestValidate_MaxAttemptsAndMaxDelayBounds(t *testing.T) {
	cfg := Default()
	cfg.MaxAttempts = MaxAttemptsLimit
	assert.NoError(t, cfg.Validate())

	cfg.MaxAttempts = MaxAttemptsLimit + 1
	cfg.MaxDelay = -time.Second
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "max_delay")
}

func TestSnapshotPath(t *testing.T) {
	tests := []struct {
		name     string
		snapshot string
		logDir   string
		want     string
	}{
		{name: "既定はlog_dir配下", logDir: "logs", want: filepath.Join("logs", SnapshotFileName)},
		{name: "log_dirの変更に追従", logDir: "/tmp/run1", want: filepath.Join("/tmp/run1", SnapshotFileName)},
		{name: "明示指定を優先", snapshot: "out/snap.json", logDir: "logs", want: "out/snap.json"},
		{name: "noneで無効", snapshot: SnapshotDisabled, logDir: "logs", want: ""},
		{name: "log_dirも空なら無効", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SnapshotFile = tt.snapshot
			cfg.LogDir = tt.logDir
			assert.Equal(t, tt.want, cfg.SnapshotPath())
		})
	}
}
