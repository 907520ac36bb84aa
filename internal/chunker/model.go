package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars は、1リクエストあたりに許可する最大文字数です（指示ブロック込み）。
const DefaultMaxChars = 400000

// DefaultMaxWords は、1リクエストあたりに許可する最大単語数です（指示ブロック込み）。
const DefaultMaxWords = 90000

// MergeInstruction は、中間結果を束ねたバンドルに付与する固定のラベルです。
const MergeInstruction = "Merge these documents into a consolidated single document."

// ErrInvalidBudget は、指示ブロックを差し引いた実効予算が正でない場合に返されます。
var ErrInvalidBudget = errors.New("実効予算が正ではありません")

// Budget は、モデルへ送る1単位の作業が守るべき文字数と単語数の上限です。
type Budget struct {
	MaxChars int
	MaxWords int
}

// Reserve は指示ブロックの消費分を差し引いた実効予算を返します。
func (b Budget) Reserve(chars, words int) (Budget, error) {
	eff := Budget{MaxChars: b.MaxChars - chars, MaxWords: b.MaxWords - words}
	if eff.MaxChars <= 0 || eff.MaxWords <= 0 {
		return Budget{}, fmt.Errorf("%w: chars=%d words=%d (overhead chars=%d words=%d)",
			ErrInvalidBudget, b.MaxChars, b.MaxWords, chars, words)
	}
	return eff, nil
}

// Scale は予算を n 倍したものを返します。処理モードの判定に使用します。
func (b Budget) Scale(n int) Budget {
	return Budget{MaxChars: b.MaxChars * n, MaxWords: b.MaxWords * n}
}

// Fits は、サイズ s が予算内に収まるかどうかを返します。
func (b Budget) Fits(s Size) bool {
	return s.Chars <= b.MaxChars && s.Words <= b.MaxWords
}

// Size は、テキストの文字数（rune 数）と単語数（空白区切り）の組です。
type Size struct {
	Chars int
	Words int
}

// Measure はテキストのサイズを計測します。
func Measure(text string) Size {
	return Size{Chars: utf8.RuneCountInString(text), Words: len(strings.Fields(text))}
}

// Add は2つのサイズの和を返します。
func (s Size) Add(o Size) Size {
	return Size{Chars: s.Chars + o.Chars, Words: s.Words + o.Words}
}

// Chunk は、1ファイルの連続した行の断片と、その由来を示すメタデータを保持します。
type Chunk struct {
	Metadata string
	Text     string
}

// ChunkMetadata は、ファイルパスとチャンク番号（1始まり）から由来文字列を組み立てます。
func ChunkMetadata(path string, ordinal int) string {
	return fmt.Sprintf("### File: %s\n### Chunk: %d\n", path, ordinal)
}

// Unit は Aggregator に渡す (ラベル, 本文) の組です。
type Unit struct {
	Label   string
	Content string
}

// Bundle は、予算内に詰め込まれたメタデータ列と本文列です。モデル呼び出しの最小単位になります。
type Bundle struct {
	Metadata []string `json:"metadata"`
	Texts    []string `json:"texts"`
}

// Label はバンドルのメタデータを1つの文字列として返します。
// 連続して同じラベルが続く場合は1つにまとめます。
func (b Bundle) Label() string {
	var sb strings.Builder
	prev := ""
	for i, m := range b.Metadata {
		if i > 0 && m == prev {
			continue
		}
		sb.WriteString(m)
		prev = m
	}
	return sb.String()
}

// Content はバンドルの本文を順序どおりに結合して返します。
func (b Bundle) Content() string {
	return strings.Join(b.Texts, "")
}

// Size はバンドル本文の合計サイズを返します。
func (b Bundle) Size() Size {
	var s Size
	for _, t := range b.Texts {
		s = s.Add(Measure(t))
	}
	return s
}
