package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
	"github.com/shouni/code-doc-reducer-go/internal/reducer"
)

// ----------------------------------------------------------------
// 具象実装
// ----------------------------------------------------------------

// CorpusChunkGenerator は ChunkGenerator インターフェースの具象実装です。
// コーパス全体のサイズで処理方式を決めてから、ファイルをチャンクに分割し、バンドルにまとめます。
type CorpusChunkGenerator struct {
	segmenter  *chunker.Segmenter
	aggregator *chunker.Aggregator
	budget     chunker.Budget
	chunkLimit int
	workers    int
	logger     *slog.Logger
}

// NewCorpusChunkGenerator は CorpusChunkGenerator の新しいインスタンスを作成します。
// budget は指示ブロック差し引き後の実効予算です。
func NewCorpusChunkGenerator(
	segmenter *chunker.Segmenter,
	aggregator *chunker.Aggregator,
	budget chunker.Budget,
	chunkLimit int,
	workers int,
	logger *slog.Logger,
) *CorpusChunkGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusChunkGenerator{
		segmenter:  segmenter,
		aggregator: aggregator,
		budget:     budget,
		chunkLimit: chunkLimit,
		workers:    max(workers, 1),
		logger:     logger,
	}
}

// Generate は、コーパスのサイズを計測して処理方式を選び、チャンクをバンドルにまとめて返します。
// 逐次モードではファイルを1つずつ、並列モードでは workers 件ずつ同時に分割します。
// いずれの場合もチャンクはファイルの順序どおりに並びます。
func (g *CorpusChunkGenerator) Generate(ctx context.Context, files []string) (*Corpus, error) {
	total := g.measure(files)
	mode := reducer.SelectMode(total, g.budget, g.chunkLimit)
	g.logger.Info("コーパスを計測しました",
		slog.Int("files", len(files)),
		slog.Int("chars", total.Chars),
		slog.Int("words", total.Words),
		slog.String("mode", mode.String()))

	perFile := make([][]chunker.Chunk, len(files))
	if mode == reducer.Sequential {
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			perFile[i] = g.segmenter.SegmentFile(path)
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.workers)
		for i, path := range files {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				perFile[i] = g.segmenter.SegmentFile(path)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("ファイルの分割が中断されました: %w", err)
		}
	}

	var chunks []chunker.Chunk
	for _, c := range perFile {
		chunks = append(chunks, c...)
	}

	bundles := g.aggregator.CombineChunks(chunks)
	g.logger.Info("チャンクをバンドルにまとめました",
		slog.Int("chunks", len(chunks)),
		slog.Int("bundles", len(bundles)))

	return &Corpus{
		Files:   files,
		Total:   total,
		Mode:    mode,
		Chunks:  len(chunks),
		Bundles: bundles,
	}, nil
}

// measure は全ファイルを読み込み、合計の文字数と単語数を返します。
// 読み込めないファイルは警告を出して0として数えます。
func (g *CorpusChunkGenerator) measure(files []string) chunker.Size {
	var total chunker.Size
	for _, path := range files {
		text, err := chunker.ReadText(path)
		if err != nil {
			g.logger.Warn("サイズ計測のためのファイル読み込みに失敗しました", slog.String("file", path), slog.Any("error", err))
			continue
		}
		total = total.Add(chunker.Measure(text))
	}
	return total
}

var _ ChunkGenerator = (*CorpusChunkGenerator)(nil)
