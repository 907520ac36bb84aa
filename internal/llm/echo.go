package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
)

// EchoGenerator は外部サービスを呼ばずに決定的な応答を返す Generator です。
// --dry-run で分割と縮約の流れだけを確認するために使います。
type EchoGenerator struct {
	maxLines int
}

// NewEchoGenerator は EchoGenerator を作成します。
func NewEchoGenerator(_ Settings) *EchoGenerator {
	return &EchoGenerator{maxLines: 5}
}

// Generate はプロンプトの "### Context:" 以降の先頭数行とサイズを Markdown で返します。
func (g *EchoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	body := prompt
	if idx := strings.LastIndex(prompt, "### Context:"); idx != -1 {
		body = prompt[idx+len("### Context:"):]
	}
	size := chunker.Measure(body)

	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) > g.maxLines {
		lines = lines[:g.maxLines]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Dry run (%d chars, %d words)\n\n", size.Chars, size.Words)
	for _, l := range lines {
		sb.WriteString("> ")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
