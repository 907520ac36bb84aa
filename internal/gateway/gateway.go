package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shouni/code-doc-reducer-go/prompts"
)

// ErrEmptyResponse は、モデルの応答にテキストが含まれていなかった場合のエラーです。再試行の対象になります。
var ErrEmptyResponse = errors.New("モデルの応答にテキストが含まれていません")

// ErrRetriesExhausted は、最大試行回数に達してもモデル呼び出しが成功しなかったことを示します。
var ErrRetriesExhausted = errors.New("最大試行回数に達しました")

// Generator は外部のテキスト生成サービスを抽象化するインターフェースです。
// 1回の呼び出しで1つのプロンプトを送り、最初のテキスト出力を返します。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrorKind は Gateway が返す失敗の種類です。
type ErrorKind int

const (
	// KindPermanent はプロンプト生成など、再試行しても解決しない失敗です。
	KindPermanent ErrorKind = iota
	// KindExhausted は再試行をすべて使い切った失敗です。実行全体を中断させます。
	KindExhausted
	// KindCanceled はコンテキストのキャンセルによる失敗です。
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindExhausted:
		return "exhausted"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// InvokeError は Invoke の失敗を種類と試行回数付きで表します。
type InvokeError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("モデル呼び出しに失敗しました (kind=%s, attempts=%d): %v", e.Kind, e.Attempts, e.Err)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// Is は KindExhausted の場合に ErrRetriesExhausted と一致します。
func (e *InvokeError) Is(target error) bool {
	return target == ErrRetriesExhausted && e.Kind == KindExhausted
}

// Options は Gateway の再試行とバッチ制御の設定です。
type Options struct {
	Retry RetryPolicy
	// BatchSize は同時に発行するリクエスト数です。
	BatchSize int
	// Cooldown は、最後以外のバッチの完了後に次のバッチを開始するまで待機する時間です。
	Cooldown time.Duration
	// Sleep はクールダウンの待機に使う関数です。nil の場合は SleepContext を使います。
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// DefaultBatchSize は1バッチあたりのリクエスト数の既定値です。
const DefaultBatchSize = 8

// DefaultCooldown はバッチ間の待機時間の既定値です。
const DefaultCooldown = 60 * time.Second

// DefaultOptions は既定値の Options を返します。
func DefaultOptions() Options {
	return Options{
		Retry:     DefaultRetryPolicy(),
		BatchSize: DefaultBatchSize,
		Cooldown:  DefaultCooldown,
	}
}

// Gateway はテキスト生成サービスを再試行とバッチ制御付きで呼び出すアダプタです。
// 外部と通信する唯一のコンポーネントです。
type Gateway struct {
	generator Generator
	builder   *prompts.PromptBuilder
	retry     RetryPolicy
	batchSize int
	cooldown  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewGateway は新しい Gateway インスタンスを作成します。
func NewGateway(generator Generator, builder *prompts.PromptBuilder, opts Options) (*Gateway, error) {
	if generator == nil {
		return nil, fmt.Errorf("Generator は nil にできません")
	}
	if builder == nil {
		return nil, fmt.Errorf("PromptBuilder は nil にできません")
	}
	if err := builder.Err(); err != nil {
		return nil, fmt.Errorf("PromptBuilderの初期化に失敗しています: %w", err)
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Gateway{
		generator: generator,
		builder:   builder,
		retry:     opts.Retry,
		batchSize: opts.BatchSize,
		cooldown:  opts.Cooldown,
		sleep:     opts.Sleep,
		logger:    opts.Logger,
	}, nil
}

// Invoke は指示ブロック、メタデータ、本文からプロンプトを組み立て、モデルを同期的に呼び出します。
// 失敗時は RetryPolicy に従って再試行し、使い切った場合は KindExhausted の InvokeError を返します。
func (g *Gateway) Invoke(ctx context.Context, metadata, content string) (string, error) {
	prompt, err := g.builder.Build(metadata, content)
	if err != nil {
		return "", &InvokeError{Kind: KindPermanent, Err: err}
	}

	attempts := 0
	var text string
	operation := func() error {
		attempts++
		out, err := g.generator.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return ErrEmptyResponse
		}
		text = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("モデル呼び出しに失敗しました。待機後に再試行します",
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	b := backoff.WithContext(g.retry.newBackOff(), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, g.retry.timer()); err != nil {
		if ctx.Err() != nil {
			return "", &InvokeError{Kind: KindCanceled, Attempts: attempts, Err: err}
		}
		g.logger.Error("最大試行回数に達しました", slog.Int("attempts", attempts), slog.Any("error", err))
		return "", &InvokeError{Kind: KindExhausted, Attempts: attempts, Err: err}
	}

	return text, nil
}

// SleepContext は d だけ待機します。コンテキストがキャンセルされた場合は即座に戻ります。
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
