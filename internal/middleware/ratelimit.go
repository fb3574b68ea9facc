package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/skygate/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	FeedRate           rate.Limit    // フィードスケルトン取得のレート（req/sec）
	FeedBurst          int           // フィードスケルトン取得のバーストサイズ
	AccountActionRate  rate.Limit    // アカウント操作トークン発行のレート（req/sec）
	AccountActionBurst int           // アカウント操作トークン発行のバーストサイズ
	CleanupInterval    time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig は1分あたりの許容回数からRateLimiterConfigを生成する。
// バーストサイズは1分あたりの回数と同じにする。
func NewRateLimiterConfig(feedPerMinute, accountActionPerMinute float64) RateLimiterConfig {
	return RateLimiterConfig{
		FeedRate:           rate.Limit(feedPerMinute / 60.0),
		FeedBurst:          burstFor(feedPerMinute),
		AccountActionRate:  rate.Limit(accountActionPerMinute / 60.0),
		AccountActionBurst: burstFor(accountActionPerMinute),
		CleanupInterval:    5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// フィード 600 req/min、アカウント操作 5 req/min。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(600, 5)
}

func burstFor(perMinute float64) int {
	b := int(math.Ceil(perMinute))
	if b < 1 {
		return 1
	}
	return b
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同じレート設定を持つリミッターの集合。
type limiterSet struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyLimiter
}

func newLimiterSet(name string, r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*keyLimiter),
	}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evictIdle は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter は呼び出し元ごとのレート制限を管理する。
// フィード取得とアカウント操作の2種類を独立に提供する。
type RateLimiter struct {
	config RateLimiterConfig

	feed          *limiterSet
	accountAction *limiterSet

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:        config,
		feed:          newLimiterSet("feed", config.FeedRate, config.FeedBurst),
		accountAction: newLimiterSet("account_action", config.AccountActionRate, config.AccountActionBurst),
		stopCh:        make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// FeedMiddleware はフィード取得のレート制限ミドルウェアを返す。
// 認証済みならDID、匿名ならリモートIPをキーにする（セッションガードの後に配置）。
func (rl *RateLimiter) FeedMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.feed)
}

// AccountActionMiddleware はアカウント操作トークン発行のレート制限ミドルウェアを返す。
// セッション必須ガードの後に配置し、DIDごとに制限する。
func (rl *RateLimiter) AccountActionMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.accountAction)
}

func (rl *RateLimiter) middleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			if !set.get(key).Allow() {
				writeRateLimitResponse(w, set.rate)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", set.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey はリクエストのレート制限キーを決める。
func rateLimitKey(r *http.Request) string {
	if p := PrincipalFromContext(r.Context()); !p.IsAnonymous() {
		return "did:" + p.DID()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// FeedLimiterCount は現在管理されているフィード取得リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) FeedLimiterCount() int {
	return rl.feed.len()
}

// AccountActionLimiterCount は現在管理されているアカウント操作リミッターのエントリ数を返す。
func (rl *RateLimiter) AccountActionLimiterCount() int {
	return rl.accountAction.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.feed.evictIdle(now, ttl)
	rl.accountAction.evictIdle(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError())
}
