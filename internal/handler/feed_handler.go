package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/skygate/internal/auth"
	"github.com/hitoshi/skygate/internal/feedgen"
	"github.com/hitoshi/skygate/internal/middleware"
	"github.com/hitoshi/skygate/internal/model"
)

// FeedSkeletonService はフィードハンドラーが必要とするサービスインターフェース。
type FeedSkeletonService interface {
	// Serve はフィードスケルトンの1ページを返す。
	Serve(ctx context.Context, q model.FeedQuery) (*feedgen.Skeleton, error)
}

// VisitorRecorder は訪問記録のインターフェース。呼び出し元は完了を待たない。
type VisitorRecorder interface {
	Record(ctx context.Context, principal auth.Principal)
}

// FeedHandler はフィードスケルトン配信のHTTPハンドラー。
type FeedHandler struct {
	service  FeedSkeletonService
	visitors VisitorRecorder
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedSkeletonService, visitors VisitorRecorder) *FeedHandler {
	return &FeedHandler{
		service:  service,
		visitors: visitors,
	}
}

// RecordVisit は後続の結果に関わらず、リクエストごとに1回訪問を記録するミドルウェア。
// レート制限より外側に置き、429で拒否されたリクエストも記録する。
func (h *FeedHandler) RecordVisit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.visitors.Record(r.Context(), middleware.PrincipalFromContext(r.Context()))
		next.ServeHTTP(w, r)
	})
}

// GetFeedSkeleton はフィードスケルトンを返す。
// GET /xrpc/app.bsky.feed.getFeedSkeleton?feed=...&limit=...&cursor=...
func (h *FeedHandler) GetFeedSkeleton(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := model.FeedQuery{
		Feed:   q.Get("feed"),
		Cursor: q.Get("cursor"),
	}
	if query.Feed == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
		return
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
			return
		}
		query.Limit = &limit
	}

	skeleton, err := h.service.Serve(r.Context(), query)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, skeleton)
}
