package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// vertexClientConfig は Vertex AI 用の genai.ClientConfig を組み立てます。
// Settings.Credentials が nil の場合、genai がアプリケーションのデフォルト認証情報を検出します。
func vertexClientConfig(settings Settings) *genai.ClientConfig {
	return &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     settings.Project,
		Location:    settings.Location,
		Credentials: settings.Credentials,
		HTTPOptions: httpOptions(settings),
	}
}

// NewVertexGenerator は Vertex AI 用の genai クライアントを初期化します。
func NewVertexGenerator(ctx context.Context, settings Settings) (*GenAIGenerator, error) {
	if settings.Project == "" {
		return nil, fmt.Errorf("Vertex AI を使用するにはプロジェクトIDを指定してください")
	}

	g, err := newGenAIGenerator(ctx, "Vertex AI", vertexClientConfig(settings), settings)
	if err != nil {
		return nil, fmt.Errorf("Vertex AIクライアントの初期化に失敗しました: %w", err)
	}
	return g, nil
}
