package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GenAIGenerator は google.golang.org/genai のクライアントを使う Generator です。
// Gemini API と Vertex AI の両方のバックエンドで共通に使います。
// SDK 側では生成呼び出しを再試行しないため、試行回数は Gateway の RetryPolicy だけで決まります。
type GenAIGenerator struct {
	client  *genai.Client
	backend string
	model   string
	config  *genai.GenerateContentConfig
	logger  *slog.Logger
}

func newGenAIGenerator(ctx context.Context, backend string, cc *genai.ClientConfig, settings Settings) (*GenAIGenerator, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GenAIGenerator{
		client:  client,
		backend: backend,
		model:   settings.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(settings.Temperature)),
			MaxOutputTokens: int32(settings.MaxOutputTokens),
		},
		logger: settings.logger(),
	}, nil
}

// httpOptions は読み込みタイムアウトとエンドポイントの上書きを genai.HTTPOptions に変換します。
// HTTPClient を差し替えると既定の認証情報の検出が行われなくなるため、タイムアウトはここで指定します。
func httpOptions(settings Settings) genai.HTTPOptions {
	opts := genai.HTTPOptions{BaseURL: settings.BaseURL}
	if settings.ReadTimeout > 0 {
		timeout := settings.ReadTimeout
		opts.Timeout = &timeout
	}
	return opts
}

// Generate はプロンプトを1つのユーザーメッセージとして送り、応答の最初の候補のテキストを返します。
func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("%sの呼び出しに失敗しました (model: %s): %w", g.backend, g.model, err)
	}
	g.logger.Debug("応答を受信しました",
		slog.String("backend", g.backend),
		slog.String("model", g.model),
		slog.Duration("elapsed", time.Since(start)))
	return resp.Text(), nil
}
