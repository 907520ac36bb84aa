package reducer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
	"github.com/shouni/code-doc-reducer-go/internal/gateway"
)

// DefaultMaxStalledRounds は、バンドル数が減らない縮約ラウンドを許容する連続回数です。
const DefaultMaxStalledRounds = 3

var (
	// ErrNoBundles は、処理対象のバンドルが1つもない場合に返されます。
	ErrNoBundles = errors.New("処理対象のバンドルがありません")
	// ErrEmptyResult は、中間結果がすべて空だった場合に返されます。
	ErrEmptyResult = errors.New("中間結果がすべて空です")
	// ErrReductionStalled は、縮約を繰り返してもバンドル数が減らなくなった場合に返されます。
	ErrReductionStalled = errors.New("縮約が収束しません")
)

// Invoker は Driver が依存するモデル呼び出しの能力です。gateway.Gateway が実装します。
type Invoker interface {
	Invoke(ctx context.Context, metadata, content string) (string, error)
	InvokeBatches(ctx context.Context, reqs []gateway.Request) ([]string, error)
}

// Driver は、バンドル列を1つの最終ドキュメントになるまでモデル呼び出しと結合を繰り返します。
type Driver struct {
	invoker          Invoker
	aggregator       *chunker.Aggregator
	maxStalledRounds int
	logger           *slog.Logger
}

// NewDriver は新しい Driver インスタンスを作成します。
func NewDriver(invoker Invoker, aggregator *chunker.Aggregator, maxStalledRounds int, logger *slog.Logger) (*Driver, error) {
	if invoker == nil {
		return nil, fmt.Errorf("Invoker は nil にできません")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("Aggregator は nil にできません")
	}
	if maxStalledRounds < 1 {
		maxStalledRounds = DefaultMaxStalledRounds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		invoker:          invoker,
		aggregator:       aggregator,
		maxStalledRounds: maxStalledRounds,
		logger:           logger,
	}, nil
}

// Run は処理方式に従ってバンドル列を処理し、最終ドキュメントを返します。
func (d *Driver) Run(ctx context.Context, bundles []chunker.Bundle, mode Mode) (string, error) {
	if len(bundles) == 0 {
		return "", ErrNoBundles
	}

	d.logger.Info("バンドルの処理を開始します",
		slog.String("mode", mode.String()),
		slog.Int("bundles", len(bundles)))

	if mode == Sequential {
		return d.runSequential(ctx, bundles)
	}
	return d.runParallel(ctx, bundles)
}

// runParallel はバッチ送信と結果の結合を、バンドルが1つになるまで繰り返し、最後に統合呼び出しを行います。
func (d *Driver) runParallel(ctx context.Context, bundles []chunker.Bundle) (string, error) {
	current := bundles
	stalled := 0

	for round := 1; ; round++ {
		d.logger.Info("縮約ラウンドを開始します", slog.Int("round", round), slog.Int("bundles", len(current)))

		results, err := d.invoker.InvokeBatches(ctx, toRequests(current))
		if err != nil {
			return "", fmt.Errorf("ラウンド %d のバッチ処理に失敗しました: %w", round, err)
		}

		merged := d.aggregator.CombineResults(results)
		switch {
		case len(merged) == 0:
			return "", ErrEmptyResult
		case len(merged) == 1:
			d.logger.Info("中間結果が1つに統合されました。最終的な統合呼び出しを行います", slog.Int("rounds", round))
			final, err := d.invoker.Invoke(ctx, merged[0].Label(), merged[0].Content())
			if err != nil {
				return "", fmt.Errorf("最終統合呼び出しに失敗しました: %w", err)
			}
			return final, nil
		case len(merged) >= len(current):
			stalled++
			d.logger.Warn("⚠️ 縮約ラウンドでバンドル数が減りませんでした",
				slog.Int("round", round),
				slog.Int("bundles", len(merged)),
				slog.Int("stalled", stalled))
			if stalled >= d.maxStalledRounds {
				return "", fmt.Errorf("%w: %d ラウンド連続でバンドル数が %d のままです", ErrReductionStalled, stalled, len(merged))
			}
		default:
			stalled = 0
		}
		current = merged
	}
}

// runSequential は、直前の出力を「Previous Context」として次の呼び出しに引き継ぎます。
// 最後の呼び出しの出力が最終ドキュメントになります。
func (d *Driver) runSequential(ctx context.Context, bundles []chunker.Bundle) (string, error) {
	consolidated := ""
	for i, b := range bundles {
		d.logger.Info("バンドルを逐次処理します", slog.Int("bundle", i+1), slog.Int("total", len(bundles)))

		metadata := SequentialMetadata(consolidated, b.Label())
		out, err := d.invoker.Invoke(ctx, metadata, b.Content())
		if err != nil {
			return "", fmt.Errorf("バンドル %d の逐次処理に失敗しました: %w", i+1, err)
		}
		consolidated = out
	}
	return consolidated, nil
}

// SequentialMetadata は逐次処理で使うメタデータ（直前の文脈 + 現在の由来）を組み立てます。
func SequentialMetadata(previous, current string) string {
	return "### Previous Context:\n" + previous + "\n\n### Current Context:\n" + current
}

func toRequests(bundles []chunker.Bundle) []gateway.Request {
	reqs := make([]gateway.Request, len(bundles))
	for i, b := range bundles {
		reqs[i] = gateway.Request{Metadata: b.Label(), Content: b.Content()}
	}
	return reqs
}

var _ Invoker = (*gateway.Gateway)(nil)
