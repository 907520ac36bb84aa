package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/auth"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func bedrockSettings() Settings {
	return Settings{
		Provider:        ProviderBedrock,
		Model:           DefaultBedrockModel,
		Region:          DefaultRegion,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		ReadTimeout:     DefaultReadTimeout,
	}
}

func TestBedrockGenerator_RequestBodyAndExtraction(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"# Project Documentation"},{"type":"text","text":"ignored"}]}`}
	g := NewBedrockGeneratorWithClient(inv, bedrockSettings())

	text, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "# Project Documentation", text)

	require.NotNil(t, inv.input)
	assert.Equal(t, DefaultBedrockModel, *inv.input.ModelId)

	var req map[string]any
	require.NoError(t, json.Unmarshal(inv.input.Body, &req))
	assert.Equal(t, AnthropicVersion, req["anthropic_version"])
	assert.Equal(t, float64(8192), req["max_tokens"])
	assert.Equal(t, 0.7, req["temperature"])

	messages := req["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	part := msg["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", part["type"])
	assert.Equal(t, "hello", part["text"])
}

func TestBedrockGenerator_Errors(t *testing.T) {
	g := NewBedrockGeneratorWithClient(&fakeInvoker{err: errors.New("ThrottlingException")}, bedrockSettings())
	_, err := g.Generate(context.Background(), "hello")
	assert.ErrorContains(t, err, "ThrottlingException")

	g = NewBedrockGeneratorWithClient(&fakeInvoker{body: `{"content":[]}`}, bedrockSettings())
	_, err = g.Generate(context.Background(), "hello")
	assert.Error(t, err)

	g = NewBedrockGeneratorWithClient(&fakeInvoker{body: `not json`}, bedrockSettings())
	_, err = g.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestEchoGenerator_IsDeterministic(t *testing.T) {
	g := NewEchoGenerator(Settings{})
	prompt := "INSTR\n\n### Context:\n### File: a.go\n### Chunk: 1\n\npackage a\n"

	a, err := g.Generate(context.Background(), prompt)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), prompt)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, a, "> ### File: a.go")
	assert.NotContains(t, a, "INSTR")
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Settings{Provider: "openai"})
	assert.Error(t, err)
}

func TestNew_Echo(t *testing.T) {
	g, err := New(context.Background(), Settings{Provider: ProviderEcho})
	require.NoError(t, err)
	assert.IsType(t, &EchoGenerator{}, g)
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, DefaultBedrockModel, DefaultModel(ProviderBedrock))
	assert.Equal(t, DefaultGeminiModel, DefaultModel(ProviderGemini))
	assert.Equal(t, DefaultGeminiModel, DefaultModel(ProviderVertex))
}

// staticToken は固定のアクセストークンを返す auth.TokenProvider です。
type staticToken string

func (s staticToken) Token(ctx context.Context) (*auth.Token, error) {
	return &auth.Token{Value: string(s), Type: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

type capturedRequest struct {
	path   string
	header http.Header
	body   string
}

// newGenAIServer は generateContent に固定の応答を返すテスト用サーバーです。
func newGenAIServer(t *testing.T, text string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{path: r.URL.Path, header: r.Header.Clone(), body: string(body)})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func genaiSettings(provider, baseURL string) Settings {
	return Settings{
		Provider:        provider,
		Model:           DefaultGeminiModel,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		ReadTimeout:     30 * time.Second,
		BaseURL:         baseURL,
	}
}

func TestVertexClientConfig_KeepsCredentialDetection(t *testing.T) {
	settings := genaiSettings(ProviderVertex, "")
	settings.Project = "my-project"
	settings.Location = "us-central1"

	cc := vertexClientConfig(settings)
	assert.Nil(t, cc.HTTPClient)
	require.NotNil(t, cc.HTTPOptions.Timeout)
	assert.Equal(t, 30*time.Second, *cc.HTTPOptions.Timeout)
	assert.Equal(t, "my-project", cc.Project)
}

func TestVertexGenerator_SendsCredentialsAndGenerationConfig(t *testing.T) {
	srv, requests := newGenAIServer(t, "# Vertex Doc")

	settings := genaiSettings(ProviderVertex, srv.URL+"/")
	settings.Project = "my-project"
	settings.Location = "us-central1"
	settings.Credentials = auth.NewCredentials(&auth.CredentialsOptions{TokenProvider: staticToken("test-token")})

	g, err := NewVertexGenerator(context.Background(), settings)
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "# Vertex Doc", text)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer test-token", reqs[0].header.Get("Authorization"))
	assert.Contains(t, reqs[0].path, "projects/my-project/locations/us-central1")
	assert.True(t, strings.HasSuffix(reqs[0].path, ":generateContent"))
	assert.Contains(t, reqs[0].body, `"maxOutputTokens":8192`)
	assert.Contains(t, reqs[0].body, `"temperature"`)
	assert.Contains(t, reqs[0].body, "hello")
}

func TestVertexGenerator_RequiresProject(t *testing.T) {
	_, err := NewVertexGenerator(context.Background(), genaiSettings(ProviderVertex, ""))
	assert.Error(t, err)
}

func TestGeminiGenerator_SingleRequestPerGenerate(t *testing.T) {
	srv, requests := newGenAIServer(t, "# Gemini Doc")

	settings := genaiSettings(ProviderGemini, srv.URL+"/")
	settings.APIKey = "flag-key"

	g, err := NewGeminiGenerator(context.Background(), settings)
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "# Gemini Doc", text)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "flag-key", reqs[0].header.Get("x-goog-api-key"))
	assert.Contains(t, reqs[0].body, `"maxOutputTokens":8192`)
	assert.Contains(t, reqs[0].body, `"temperature"`)
}

func TestGeminiGenerator_ServerErrorIsNotRetriedInside(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	t.Cleanup(srv.Close)

	settings := genaiSettings(ProviderGemini, srv.URL+"/")
	settings.APIKey = "flag-key"
	g, err := NewGeminiGenerator(context.Background(), settings)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "hello")
	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestGeminiGenerator_FlagKeyTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	srv, requests := newGenAIServer(t, "ok")

	settings := genaiSettings(ProviderGemini, srv.URL+"/")
	settings.APIKey = "flag-key"
	g, err := NewGeminiGenerator(context.Background(), settings)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "flag-key", requests()[0].header.Get("x-goog-api-key"))

	settings.APIKey = ""
	g, err = NewGeminiGenerator(context.Background(), settings)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "env-key", requests()[1].header.Get("x-goog-api-key"))
}

func TestGeminiGenerator_MissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := NewGeminiGenerator(context.Background(), genaiSettings(ProviderGemini, ""))
	assert.Error(t, err)
}
