package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/auth"

	"github.com/shouni/code-doc-reducer-go/internal/gateway"
)

// サポートするプロバイダ名
const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
	ProviderVertex  = "vertex"
	ProviderEcho    = "echo"
)

const (
	// DefaultBedrockModel は Bedrock で使用する既定のモデルIDです。
	DefaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	// DefaultGeminiModel は Gemini / Vertex AI で使用する既定のモデル名です。
	DefaultGeminiModel = "gemini-2.5-pro"
	// DefaultRegion は Bedrock の既定リージョンです。
	DefaultRegion = "us-east-1"
	// DefaultTemperature は生成時のランダム性の既定値です。
	DefaultTemperature = 0.7
	// DefaultMaxOutputTokens は1回の応答の最大出力トークン数の既定値です。
	DefaultMaxOutputTokens = 8192
	// DefaultReadTimeout は1回の呼び出しの読み込みタイムアウトです。事実上無制限として扱います。
	DefaultReadTimeout = 100000 * time.Second
)

// Settings はテキスト生成サービスへの接続設定です。
type Settings struct {
	Provider        string
	Model           string
	Region          string
	Project         string
	Location        string
	APIKey          string
	Temperature     float64
	MaxOutputTokens int
	ReadTimeout     time.Duration
	// BaseURL は genai のエンドポイントを上書きします。空の場合は SDK の既定値を使います。
	BaseURL string
	// Credentials は Vertex AI の認証情報です。nil の場合はデフォルト認証情報を検出します。
	Credentials *auth.Credentials
	Logger      *slog.Logger
}

func (s Settings) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// DefaultModel はプロバイダごとの既定モデル名を返します。
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini, ProviderVertex:
		return DefaultGeminiModel
	case ProviderEcho:
		return ProviderEcho
	default:
		return DefaultBedrockModel
	}
}

// New は Settings.Provider に応じた Generator を構築します。
func New(ctx context.Context, settings Settings) (gateway.Generator, error) {
	if settings.Model == "" {
		settings.Model = DefaultModel(settings.Provider)
	}
	settings.logger().Info("テキスト生成クライアントを初期化します",
		slog.String("provider", settings.Provider),
		slog.String("model", settings.Model))

	switch settings.Provider {
	case ProviderBedrock, "":
		return NewBedrockGenerator(ctx, settings)
	case ProviderGemini:
		return NewGeminiGenerator(ctx, settings)
	case ProviderVertex:
		return NewVertexGenerator(ctx, settings)
	case ProviderEcho:
		return NewEchoGenerator(settings), nil
	default:
		return nil, fmt.Errorf("未対応のプロバイダです: %s", settings.Provider)
	}
}
