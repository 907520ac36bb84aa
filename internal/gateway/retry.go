package gateway

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts は、1回のモデル呼び出しに許可する最大試行回数です。
	DefaultMaxAttempts = 10
	// DefaultBaseDelay は、最初の再試行までの基準待機時間です。
	DefaultBaseDelay = 30 * time.Second
	// DefaultBackoffFactor は、試行ごとに待機時間へ掛ける倍率です。
	DefaultBackoffFactor = 2.0
	// DefaultJitterMin と DefaultJitterMax は、待機時間に加える一様ジッターの範囲です。
	DefaultJitterMin = 5 * time.Second
	DefaultJitterMax = 10 * time.Second
	// DefaultMaxDelay は指数部分の待機時間の上限です。既定の試行回数では到達しません。
	DefaultMaxDelay = 6 * time.Hour
)

// maxBaseDelay は time.Duration に変換しても桁あふれしない指数部分の上限です。
const maxBaseDelay = time.Duration(math.MaxInt64 / 2)

// RetryPolicy は、モデル呼び出しの再試行回数と待機時間の計算方法を定義します。
// 待機時間は min(BaseDelay × Factor^attempt, MaxDelay) + uniform(JitterMin, JitterMax) です（attempt は0始まり）。
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	// MaxDelay は指数部分の上限です。0 以下の場合は桁あふれしない範囲でのみ制限します。
	MaxDelay  time.Duration
	JitterMin time.Duration
	JitterMax time.Duration

	// NewTimer は再試行の待機に使うタイマーを生成します。nil の場合は time.Timer を使います。
	NewTimer func() backoff.Timer

	rng *lockedRand
}

// DefaultRetryPolicy は既定値の RetryPolicy を返します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Factor:      DefaultBackoffFactor,
		MaxDelay:    DefaultMaxDelay,
		JitterMin:   DefaultJitterMin,
		JitterMax:   DefaultJitterMax,
	}
}

// WithSeed は、ジッターを固定シードの乱数で生成する RetryPolicy を返します。
func (p RetryPolicy) WithSeed(seed uint64) RetryPolicy {
	p.rng = &lockedRand{r: rand.New(rand.NewPCG(seed, seed))}
	return p
}

// Wait は attempt 回目（0始まり）の失敗後に待機する時間を返します。
func (p RetryPolicy) Wait(attempt int) time.Duration {
	return p.baseDelay(attempt) + p.jitter()
}

// baseDelay は指数部分を float64 のまま上限と比較してから time.Duration に変換します。
func (p RetryPolicy) baseDelay(attempt int) time.Duration {
	limit := maxBaseDelay
	if p.MaxDelay > 0 && p.MaxDelay < limit {
		limit = p.MaxDelay
	}
	base := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if math.IsNaN(base) || base < 0 {
		return 0
	}
	if base >= float64(limit) {
		return limit
	}
	return time.Duration(base)
}

func (p RetryPolicy) jitter() time.Duration {
	span := p.JitterMax - p.JitterMin
	if span <= 0 {
		return p.JitterMin
	}
	var f float64
	if p.rng != nil {
		f = p.rng.Float64()
	} else {
		f = rand.Float64()
	}
	return p.JitterMin + time.Duration(f*float64(span))
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	var retries uint64
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return backoff.WithMaxRetries(&exponentialJitter{policy: p}, retries)
}

func (p RetryPolicy) timer() backoff.Timer {
	if p.NewTimer != nil {
		return p.NewTimer()
	}
	return &realTimer{}
}

// exponentialJitter は RetryPolicy.Wait に従う backoff.BackOff の実装です。
type exponentialJitter struct {
	policy  RetryPolicy
	attempt int
}

func (b *exponentialJitter) NextBackOff() time.Duration {
	d := b.policy.Wait(b.attempt)
	b.attempt++
	return d
}

func (b *exponentialJitter) Reset() {
	b.attempt = 0
}

// lockedRand は複数の goroutine から共有される乱数源です。
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// realTimer は time.Timer による backoff.Timer の実装です。
type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}
