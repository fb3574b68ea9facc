package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skygate/internal/auth"
	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/model"
)

// ガード名。メトリクスのラベルに使う。
const (
	guardServiceKey = "service_key"
	guardSession    = "session"
)

// NewServiceKeyMiddleware はX-RSKY-KEYヘッダーを検証するミドルウェアを返す。
// サーバー側のキーが未設定の場合は400、ヘッダーがないか不一致の場合は401を返す。
// データストアには一切アクセスしない。
func NewServiceKeyMiddleware(gw *auth.Gateway, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fingerprint, err := gw.CheckServiceKey(r.Header)
			if err != nil {
				mc.RecordAuthFailure(guardServiceKey, auth.FailureReason(err))

				if errors.Is(err, auth.ErrNotConfigured) {
					slog.Error("service key is not configured",
						slog.String("path", r.URL.Path),
					)
					WriteErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
					return
				}

				slog.Warn("service key rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", auth.FailureReason(err)),
					slog.String("credential", auth.Classify(r.Header).String()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithServiceKeyFingerprint(r.Context(), fingerprint)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewSessionRequiredMiddleware はベアラートークンを必須とするミドルウェアを返す。
// 検証に失敗した場合は401を返し、後続のハンドラーは実行しない。
func NewSessionRequiredMiddleware(gw *auth.Gateway, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := gw.Authenticate(r.Context(), r.Header)
			if err != nil {
				mc.RecordAuthFailure(guardSession, auth.FailureReason(err))
				slog.Warn("session token rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", auth.FailureReason(err)),
					slog.String("credential", auth.Classify(r.Header).String()),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewSessionOptionalMiddleware はベアラートークンを任意とするミドルウェアを返す。
// トークンがないか不正な場合は匿名としてリクエストを続行する。
func NewSessionOptionalMiddleware(gw *auth.Gateway, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := gw.Authenticate(r.Context(), r.Header)
			if err != nil && !errors.Is(err, auth.ErrMissingCredential) {
				mc.RecordAuthFailure(guardSession, auth.FailureReason(err))
				slog.Debug("session token ignored, continuing anonymously",
					slog.String("path", r.URL.Path),
					slog.String("reason", auth.FailureReason(err)),
				)
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
