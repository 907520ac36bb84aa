package chunker

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Segmenter は、1ファイルのテキストを行境界で予算内のチャンクに分割します。
type Segmenter struct {
	budget Budget
	logger *slog.Logger
}

// NewSegmenter は実効予算（指示ブロック差し引き後）を使う Segmenter を作成します。
func NewSegmenter(budget Budget, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{budget: budget, logger: logger}
}

// SegmentFile はファイルを読み込み、チャンクに分割します。
// 読み込みに失敗したファイルはログに記録され、チャンクを1つも生成しません。
// 不正な UTF-8 シーケンスは置換文字に置き換えられます。
func (s *Segmenter) SegmentFile(path string) []Chunk {
	s.logger.Info("ファイルを処理します", slog.String("file", path))

	text, err := ReadText(path)
	if err != nil {
		s.logger.Error("ファイルの読み込みに失敗しました", slog.String("file", path), slog.Any("error", err))
		return nil
	}

	chunks := s.Segment(path, text)
	s.logger.Info("ファイルの処理が完了しました",
		slog.String("file", path),
		slog.Int("total_chunks", len(chunks)))
	return chunks
}

// Segment は、テキストを行単位で蓄積し、次の行で文字数か単語数の上限を超える時点でチャンクを閉じます。
// 1行だけで予算を超える場合、その行は分割されず単独の（予算超過の）チャンクになります。
// これは純粋な関数であり、外部の状態に依存しません。
func (s *Segmenter) Segment(path, text string) []Chunk {
	var chunks []Chunk
	var current strings.Builder
	var size Size

	flush := func() {
		chunks = append(chunks, Chunk{
			Metadata: ChunkMetadata(path, len(chunks)+1),
			Text:     current.String(),
		})
		current.Reset()
		size = Size{}
	}

	for _, line := range SplitLines(text) {
		lineSize := Measure(line)
		if current.Len() > 0 && !s.budget.Fits(size.Add(lineSize)) {
			flush()
		}
		if !s.budget.Fits(lineSize) {
			s.logger.Warn("⚠️ 1行だけで予算を超えています。分割せずに単独のチャンクとして扱います。",
				slog.String("file", path),
				slog.Int("line_chars", lineSize.Chars),
				slog.Int("line_words", lineSize.Words))
		}
		current.WriteString(line)
		size = size.Add(lineSize)
	}

	if current.Len() > 0 {
		flush()
	}
	return chunks
}

// SplitLines は改行文字を保持したままテキストを行に分割します。
// 分割結果を順に連結すると元のテキストに一致します。
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ReadText はファイルを読み込み、不正な UTF-8 を置換文字に置き換えたテキストを返します。
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
