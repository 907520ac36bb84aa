package builder

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
	"github.com/shouni/code-doc-reducer-go/internal/config"
	"github.com/shouni/code-doc-reducer-go/internal/gateway"
	"github.com/shouni/code-doc-reducer-go/internal/llm"
	"github.com/shouni/code-doc-reducer-go/internal/pipeline"
	"github.com/shouni/code-doc-reducer-go/internal/reducer"
	gcs "github.com/shouni/code-doc-reducer-go/internal/storage"
	"github.com/shouni/code-doc-reducer-go/prompts"
)

// NewGCSClientIfNeeded は、paths のいずれかが gs:// の場合にのみ GCS クライアントを初期化します。
// 不要な場合は nil のクライアントと何もしないクリーンアップ関数を返します。
func NewGCSClientIfNeeded(ctx context.Context, paths ...string) (*storage.Client, func(), error) {
	needed := false
	for _, p := range paths {
		if gcs.IsGCSURI(p) {
			needed = true
			break
		}
	}
	if !needed {
		return nil, func() {}, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, func() {}, fmt.Errorf("GCSクライアントの初期化に失敗しました: %w", err)
	}
	return client, func() { client.Close() }, nil
}

// BuildPipeline は、必要なすべての依存関係を構築し、DIされた Pipeline インスタンスと
// GCSクライアントのクリーンアップ関数 (Close) を返します。
func BuildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, func() {}, err
	}

	// ----------------------------------------------------------------
	// 1. GCS クライアントの初期化とクリーンアップ設定
	// ----------------------------------------------------------------

	snapshot := cfg.SnapshotPath()
	gcsClient, closer, err := NewGCSClientIfNeeded(ctx, cfg.OutputFile, snapshot)
	if err != nil {
		return nil, closer, err
	}

	// ----------------------------------------------------------------
	// 2. プロンプトと実効予算
	// ----------------------------------------------------------------

	promptBuilder := prompts.NewDocumentPromptBuilder()
	if err := promptBuilder.Err(); err != nil {
		return nil, closer, fmt.Errorf("Document Prompt Builderの初期化に失敗しました: %w", err)
	}
	budget, err := cfg.Budget().Reserve(promptBuilder.Overhead())
	if err != nil {
		return nil, closer, fmt.Errorf("実効予算の計算に失敗しました: %w", err)
	}
	logger.Debug("実効予算を計算しました", slog.Int("max_chars", budget.MaxChars), slog.Int("max_words", budget.MaxWords))

	segmenter := chunker.NewSegmenter(budget, logger)
	aggregator := chunker.NewAggregator(budget, logger)

	// ----------------------------------------------------------------
	// 3. テキスト生成クライアントと Gateway の構築
	// ----------------------------------------------------------------

	generator, err := llm.New(ctx, llm.Settings{
		Provider:        cfg.Provider,
		Model:           cfg.ModelID,
		Region:          cfg.Region,
		Project:         cfg.Project,
		Location:        cfg.Location,
		APIKey:          cfg.APIKey,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		ReadTimeout:     cfg.ReadTimeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, closer, fmt.Errorf("テキスト生成クライアントの初期化に失敗しました: %w", err)
	}

	gw, err := gateway.NewGateway(generator, promptBuilder, gateway.Options{
		Retry: gateway.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Factor:      cfg.BackoffFactor,
			MaxDelay:    cfg.MaxDelay,
			JitterMin:   cfg.JitterMin,
			JitterMax:   cfg.JitterMax,
		},
		BatchSize: cfg.BatchSize,
		Cooldown:  cfg.Cooldown,
		Logger:    logger,
	})
	if err != nil {
		return nil, closer, fmt.Errorf("Gatewayの初期化に失敗しました: %w", err)
	}

	driver, err := reducer.NewDriver(gw, aggregator, cfg.MaxStalledRounds, logger)
	if err != nil {
		return nil, closer, fmt.Errorf("Driverの初期化に失敗しました: %w", err)
	}

	// ----------------------------------------------------------------
	// 4. パイプラインステージの実装とPipelineの構築 (DIの実行)
	// ----------------------------------------------------------------

	collector := pipeline.NewDirectoryFileCollector(cfg.Directory, pipeline.FileFilter{
		Extensions:     cfg.FileExtensions,
		ExcludeFolders: cfg.ExcludeFolders,
		ExcludeFiles:   cfg.ExcludeFiles,
	}, logger)

	chunkGen := pipeline.NewCorpusChunkGenerator(segmenter, aggregator, budget, cfg.ChunkLimit, cfg.FileWorkers, logger)

	var remote pipeline.RemoteWriter
	if gcsClient != nil {
		remote = gcs.NewGCSFileWriter(gcsClient)
	}
	outputGen := pipeline.NewFileOutputGenerator(remote, logger)

	opts := pipeline.Options{OutputFile: cfg.OutputFile, SnapshotFile: snapshot}
	return pipeline.NewPipeline(opts, collector, chunkGen, driver, outputGen), closer, nil
}
