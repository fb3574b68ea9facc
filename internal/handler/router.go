package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skygate/internal/auth"
	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/middleware"
	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gateway     *auth.Gateway
	RateLimiter *middleware.RateLimiter
	Metrics     metrics.MetricsCollector
	Logger      *slog.Logger

	// フィード
	FeedService FeedSkeletonService
	Visitors    VisitorRecorder

	// 取り込み・カーソル
	Ingestor      Ingestor
	CursorService CursorService

	// アカウント操作
	AccountService AccountActionService

	// サービス識別
	ServiceDID string
	Hostname   string

	// ヘルスチェック対象
	HealthChecks map[string]repository.Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Tracing → Logging → Metrics → Recovery → (ルートごとのガード → 訪問記録 → レート制限)
//
// 未定義のパスは404、メソッド不一致は405をいずれもUndefinedEndpointで返す。
func NewRouter(deps *RouterDeps) http.Handler {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware())
	r.Use(middleware.NewTracingMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewRecoveryMiddleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUndefinedEndpointError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIErrorResponse(w, http.StatusMethodNotAllowed, model.NewUndefinedEndpointError())
	})

	feedHandler := NewFeedHandler(deps.FeedService, deps.Visitors)
	cursorHandler := NewCursorHandler(deps.CursorService)
	queueHandler := NewQueueHandler(deps.Ingestor)
	accountHandler := NewAccountHandler(deps.AccountService)
	wellKnownHandler := NewWellKnownHandler(deps.ServiceDID, deps.Hostname)
	healthHandler := NewHealthHandler(deps.HealthChecks)

	// --- 認証不要のルート ---
	r.Get("/.well-known/did.json", wellKnownHandler.DIDJSON)
	r.Get("/health", healthHandler.Health)

	// --- セッション任意: フィードスケルトン ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionOptionalMiddleware(deps.Gateway, mc))
		r.Use(feedHandler.RecordVisit)
		r.Use(deps.RateLimiter.FeedMiddleware())

		r.Get("/xrpc/app.bsky.feed.getFeedSkeleton", feedHandler.GetFeedSkeleton)
	})

	// --- セッション必須: アカウント操作トークン ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionRequiredMiddleware(deps.Gateway, mc))
		r.Use(deps.RateLimiter.AccountActionMiddleware())

		r.Post("/xrpc/com.atproto.server.requestEmailConfirmation", accountHandler.RequestEmailConfirmation)
		r.Post("/xrpc/com.atproto.server.requestAccountDelete", accountHandler.RequestAccountDelete)
	})

	// --- サービスキー: 取り込みキューとカーソル ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewServiceKeyMiddleware(deps.Gateway, mc))

		r.Get("/cursor", cursorHandler.GetCursor)
		r.Put("/cursor", cursorHandler.UpdateCursor)

		r.With(middleware.NewRequireJSONMiddleware()).Put("/queue/create", queueHandler.Create)
		r.With(middleware.NewRequireJSONMiddleware()).Put("/queue/delete", queueHandler.Delete)
	})

	return r
}
