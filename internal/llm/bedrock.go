package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// AnthropicVersion は Bedrock 上の Anthropic モデルに送る API バージョンです。
const AnthropicVersion = "bedrock-2023-05-31"

// BedrockInvoker は bedrockruntime.Client の InvokeModel を抽象化します。
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockGenerator は AWS Bedrock 上の Anthropic Messages API を呼び出す Generator です。
type BedrockGenerator struct {
	client   BedrockInvoker
	settings Settings
}

// NewBedrockGenerator は既定の認証情報チェーンで Bedrock クライアントを初期化します。
// 読み込みタイムアウトは HTTP クライアントのタイムアウトとして設定されます。
func NewBedrockGenerator(ctx context.Context, settings Settings) (*BedrockGenerator, error) {
	httpClient := awshttp.NewBuildableClient().WithTimeout(settings.ReadTimeout)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(settings.Region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗しました: %w", err)
	}

	return NewBedrockGeneratorWithClient(bedrockruntime.NewFromConfig(cfg), settings), nil
}

// NewBedrockGeneratorWithClient は任意の BedrockInvoker を使う Generator を作成します。
func NewBedrockGeneratorWithClient(client BedrockInvoker, settings Settings) *BedrockGenerator {
	return &BedrockGenerator{client: client, settings: settings}
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

// Generate はプロンプトを1つのユーザーメッセージとして送り、応答の最初のテキストを返します。
func (g *BedrockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: AnthropicVersion,
		MaxTokens:        g.settings.MaxOutputTokens,
		Temperature:      g.settings.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicContent{{Type: "text", Text: prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("Bedrockリクエストの生成に失敗しました: %w", err)
	}

	start := time.Now()
	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.settings.Model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("Bedrockの呼び出しに失敗しました (model: %s): %w", g.settings.Model, err)
	}
	g.settings.logger().Debug("Bedrockの応答を受信しました",
		slog.String("model", g.settings.Model),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("bytes", len(out.Body)))

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("Bedrock応答の解析に失敗しました: %w", err)
	}
	for _, c := range resp.Content {
		if c.Type == "text" || c.Type == "" {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("Bedrock応答にテキストが含まれていません (model: %s)", g.settings.Model)
}

var _ BedrockInvoker = (*bedrockruntime.Client)(nil)
