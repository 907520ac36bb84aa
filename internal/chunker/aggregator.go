package chunker

import "log/slog"

// Aggregator は、小さな単位を予算内に収まる少数のバンドルへ貪欲に詰め込み、モデル呼び出し回数を減らします。
type Aggregator struct {
	budget Budget
	logger *slog.Logger
}

// NewAggregator は実効予算を使う Aggregator を作成します。
func NewAggregator(budget Budget, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{budget: budget, logger: logger}
}

// Pack は単位を順序どおりに走査し、次の単位で上限を超える時点でバンドルを閉じます。
// 単独で予算を超える単位は新しいバンドルを開始し、捨てられることも分割されることもありません。
func (a *Aggregator) Pack(units []Unit) []Bundle {
	var bundles []Bundle
	var current Bundle
	var size Size

	for _, u := range units {
		unitSize := Measure(u.Content)
		if len(current.Texts) > 0 && !a.budget.Fits(size.Add(unitSize)) {
			bundles = append(bundles, current)
			current = Bundle{}
			size = Size{}
		}
		if !a.budget.Fits(unitSize) {
			a.logger.Warn("⚠️ 単独で予算を超える単位があります。そのままバンドルに含めます。",
				slog.String("label", u.Label),
				slog.Int("chars", unitSize.Chars),
				slog.Int("words", unitSize.Words))
		}
		current.Metadata = append(current.Metadata, u.Label)
		current.Texts = append(current.Texts, u.Content)
		size = size.Add(unitSize)
	}

	if len(current.Texts) > 0 {
		bundles = append(bundles, current)
	}
	return bundles
}

// CombineChunks は Segmenter が生成したチャンクをバンドルにまとめます。
func (a *Aggregator) CombineChunks(chunks []Chunk) []Bundle {
	a.logger.Info("チャンクを結合します", slog.Int("total_chunks", len(chunks)))

	units := make([]Unit, len(chunks))
	for i, c := range chunks {
		units[i] = Unit{Label: c.Metadata, Content: c.Text}
	}
	bundles := a.Pack(units)

	a.logger.Info("リクエスト数を減らすためにチャンクを結合しました", slog.Int("bundles", len(bundles)))
	return bundles
}

// CombineResults は中間結果をバンドルにまとめます。各結果のラベルは MergeInstruction に置き換えられます。
func (a *Aggregator) CombineResults(results []string) []Bundle {
	a.logger.Info("中間結果を結合します", slog.Int("total_results", len(results)))

	units := make([]Unit, 0, len(results))
	for _, r := range results {
		if r == "" {
			continue
		}
		units = append(units, Unit{Label: MergeInstruction, Content: r})
	}
	bundles := a.Pack(units)

	a.logger.Info("中間結果を結合しました", slog.Int("bundles", len(bundles)))
	return bundles
}
