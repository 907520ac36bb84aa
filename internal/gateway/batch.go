package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Request は1回のモデル呼び出しに渡すメタデータと本文です。
type Request struct {
	Metadata string
	Content  string
}

// InvokeBatches は、リクエストを BatchSize ごとのバッチに分けて処理します。
// バッチ内のリクエストは並列に発行され、最後以外のバッチの完了後は Cooldown だけ待機します。
// 結果は完了順ではなく、元のリクエストの順序で返されます。
func (g *Gateway) InvokeBatches(ctx context.Context, reqs []Request) ([]string, error) {
	results := make([]string, len(reqs))

	g.logger.Info("リクエストのバッチ処理を開始します",
		slog.Int("total_requests", len(reqs)),
		slog.Int("batch_size", g.batchSize),
		slog.Duration("cooldown", g.cooldown))

	for start := 0; start < len(reqs); start += g.batchSize {
		end := min(start+g.batchSize, len(reqs))

		g.logger.Info("バッチを処理します",
			slog.Int("batch", start/g.batchSize+1),
			slog.Int("from", start+1),
			slog.Int("to", end))

		eg, egCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			req := reqs[i]
			eg.Go(func() error {
				text, err := g.Invoke(egCtx, req.Metadata, req.Content)
				if err != nil {
					return fmt.Errorf("リクエスト %d の処理に失敗しました: %w", i+1, err)
				}
				results[i] = text
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		if end < len(reqs) {
			g.logger.Info("レート制限を避けるため次のバッチまで待機します", slog.Duration("cooldown", g.cooldown))
			if err := g.sleep(ctx, g.cooldown); err != nil {
				return nil, fmt.Errorf("バッチ間の待機が中断されました: %w", err)
			}
		}
	}

	return results, nil
}
