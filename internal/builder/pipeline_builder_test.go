package builder

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/code-doc-reducer-go/internal/config"
	"github.com/shouni/code-doc-reducer-go/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewGCSClientIfNeeded_LocalPathsSkipClient(t *testing.T) {
	client, closer, err := NewGCSClientIfNeeded(context.Background(), "README.md", "logs/combined_chunks.json")
	require.NoError(t, err)
	assert.Nil(t, client)
	closer()
}

func TestBuildPipeline_DryRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644))
	out := t.TempDir()

	cfg := config.Default()
	cfg.Directory = root
	cfg.Provider = llm.ProviderEcho
	cfg.OutputFile = filepath.Join(out, "README.md")
	cfg.SnapshotFile = filepath.Join(out, "logs", "combined_chunks.json")

	p, closer, err := BuildPipeline(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer closer()

	require.NoError(t, p.Execute(context.Background()))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Dry run")

	_, err = os.Stat(cfg.SnapshotFile)
	assert.NoError(t, err)
}

func TestBuildPipeline_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 0
	_, closer, err := BuildPipeline(context.Background(), cfg, testLogger())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	closer()
}

func TestBuildPipeline_BudgetSmallerThanInstruction(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = llm.ProviderEcho
	cfg.MaxChars = 10
	_, closer, err := BuildPipeline(context.Background(), cfg, testLogger())
	assert.Error(t, err)
	closer()
}

func TestBuildPipeline_SnapshotFollowsLogDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))
	out := t.TempDir()

	cfg := config.Default()
	cfg.Directory = root
	cfg.Provider = llm.ProviderEcho
	cfg.OutputFile = filepath.Join(out, "README.md")
	cfg.LogDir = filepath.Join(out, "custom-logs")

	p, closer, err := BuildPipeline(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer closer()
	require.NoError(t, p.Execute(context.Background()))

	_, err = os.Stat(filepath.Join(cfg.LogDir, config.SnapshotFileName))
	assert.NoError(t, err)
}
