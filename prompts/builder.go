package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed instruction_prompt.md
var InstructionPrompt string

//go:embed document_prompt.md
var DocumentPromptTemplate string

// ----------------------------------------------------------------
// テンプレート構造体
// ----------------------------------------------------------------

// DocumentTemplateData はドキュメント生成プロンプトに埋め込む値です。
type DocumentTemplateData struct {
	Instruction string
	Metadata    string
	Content     string
}

// ----------------------------------------------------------------
// ビルダー実装
// ----------------------------------------------------------------

// PromptBuilder はプロンプトの構成とテンプレート実行を管理します。
type PromptBuilder struct {
	tmpl        *template.Template
	instruction string
	err         error
}

// NewDocumentPromptBuilder は埋め込み済みの指示ブロックを使う PromptBuilder を初期化します。
// パースに失敗した場合は、内部にエラーを保持したPromptBuilderを返します。
func NewDocumentPromptBuilder() *PromptBuilder {
	return NewPromptBuilder(InstructionPrompt)
}

// NewPromptBuilder は任意の指示ブロックで PromptBuilder を初期化します。
func NewPromptBuilder(instruction string) *PromptBuilder {
	tmpl, err := template.New("document").Parse(DocumentPromptTemplate)
	return &PromptBuilder{tmpl: tmpl, instruction: instruction, err: err}
}

// Err は PromptBuilder の初期化（テンプレートパース）時に発生したエラーを返します。
func (b *PromptBuilder) Err() error {
	return b.err
}

// Build は指示ブロック、メタデータ、本文を結合し、モデルへ送る最終的なプロンプト文字列を完成させます。
func (b *PromptBuilder) Build(metadata, content string) (string, error) {
	if b.tmpl == nil || b.err != nil {
		return "", fmt.Errorf("document prompt template is not properly initialized: %w", b.err)
	}

	if metadata == "" && content == "" {
		return "", fmt.Errorf("プロンプト生成失敗: メタデータと本文が両方とも空です (template: %s)", b.tmpl.Name())
	}

	data := DocumentTemplateData{
		Instruction: b.instruction,
		Metadata:    metadata,
		Content:     content,
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトの実行に失敗しました: %w", err)
	}

	return sb.String(), nil
}

// Overhead は指示ブロックが消費する文字数と単語数を返します。
// 予算からこの値を差し引いたものが本文に使える実効予算です。
func (b *PromptBuilder) Overhead() (chars, words int) {
	return utf8.RuneCountInString(b.instruction), len(strings.Fields(b.instruction))
}
