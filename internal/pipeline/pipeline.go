package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	PhaseCollect = "ファイル収集フェーズ"
	PhaseChunk   = "チャンク分割フェーズ"
	PhaseReduce  = "ドキュメント生成フェーズ"
	PhaseOutput  = "出力フェーズ"
)

// Execute はアプリケーションの主要な処理フローを、注入されたステージを通じて実行します。
// 縮約が失敗した場合、出力ファイルは書き込まれません。
func (p *Pipeline) Execute(ctx context.Context) error {
	// 1. ファイル収集ステージ
	files, err := p.Collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("%sでエラーが発生しました: %w", PhaseCollect, err)
	}
	slog.Info("ドキュメント生成処理を開始します", slog.Int("files", len(files)))

	// 2. チャンク分割ステージ
	corpus, err := p.Chunker.Generate(ctx, files)
	if err != nil {
		return fmt.Errorf("%sでエラーが発生しました: %w", PhaseChunk, err)
	}

	if p.Options.SnapshotFile != "" {
		if err := p.OutputGen.WriteSnapshot(ctx, p.Options.SnapshotFile, corpus.Bundles); err != nil {
			slog.Warn("スナップショットの書き込みに失敗しました", slog.String("file", p.Options.SnapshotFile), slog.Any("error", err))
		}
	}

	// 3. ドキュメント生成ステージ
	slog.Info("バンドルをモデルに送信します",
		slog.String("mode", corpus.Mode.String()),
		slog.Int("bundles", len(corpus.Bundles)))
	document, err := p.Reducer.Run(ctx, corpus.Bundles, corpus.Mode)
	if err != nil {
		return fmt.Errorf("%sでエラーが発生しました: %w", PhaseReduce, err)
	}

	// 4. 出力ステージ
	if err := p.OutputGen.WriteDocument(ctx, p.Options.OutputFile, document); err != nil {
		return fmt.Errorf("%sでエラーが発生しました: %w", PhaseOutput, err)
	}

	slog.Info("処理が正常に完了しました。", slog.String("output", p.Options.OutputFile))
	return nil
}
