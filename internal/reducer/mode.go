package reducer

import "github.com/shouni/code-doc-reducer-go/internal/chunker"

// DefaultChunkLimit は、逐次処理を選択するコーパスサイズの上限（実効予算の倍数）です。
const DefaultChunkLimit = 3

// Mode はコーパス全体の処理方式です。
type Mode int

const (
	// Sequential は直前の出力を文脈として引き継ぎながら1件ずつ処理します。
	Sequential Mode = iota
	// Parallel はバッチで並列に処理し、結果を1つになるまで縮約します。
	Parallel
)

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "parallel"
}

// SelectMode は、コーパスの合計サイズが n 個分の実効予算に収まる場合に Sequential を返します。
func SelectMode(total chunker.Size, budget chunker.Budget, n int) Mode {
	if budget.Scale(n).Fits(total) {
		return Sequential
	}
	return Parallel
}
