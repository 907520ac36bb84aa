package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// APIキーを読み込む環境変数。先に見つかったものを使います。
var geminiAPIKeyEnvs = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// NewGeminiGenerator は Gemini API 用の genai クライアントを初期化します。
// Settings.APIKey が空の場合は環境変数 GEMINI_API_KEY、GOOGLE_API_KEY の順に参照します。
func NewGeminiGenerator(ctx context.Context, settings Settings) (*GenAIGenerator, error) {
	apiKey := settings.APIKey
	for _, env := range geminiAPIKeyEnvs {
		if apiKey != "" {
			break
		}
		apiKey = os.Getenv(env)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini APIキーが指定されていません。--api-key または環境変数 GEMINI_API_KEY を設定してください")
	}

	g, err := newGenAIGenerator(ctx, "Gemini", &genai.ClientConfig{
		Backend:     genai.BackendGeminiAPI,
		APIKey:      apiKey,
		HTTPOptions: httpOptions(settings),
	}, settings)
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました。APIキーを確認してください: %w", err)
	}
	return g, nil
}
