package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/skygate/internal/model"
)

// CursorService はカーソルハンドラーが必要とするサービスインターフェース。
type CursorService interface {
	SetCursor(ctx context.Context, service string, sequence int64) error
	GetCursor(ctx context.Context, service string) (*model.CursorState, error)
}

// CursorHandler は購読カーソルのHTTPハンドラー。
type CursorHandler struct {
	service CursorService
}

// NewCursorHandler はCursorHandlerを生成する。
func NewCursorHandler(service CursorService) *CursorHandler {
	return &CursorHandler{service: service}
}

// cursorResponse はカーソル取得のレスポンス。
type cursorResponse struct {
	Service  string `json:"service"`
	Sequence int64  `json:"sequence"`
}

// UpdateCursor はカーソルを保存する。
// PUT /cursor?service=...&sequence=...
func (h *CursorHandler) UpdateCursor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	service := q.Get("service")
	sequence, err := strconv.ParseInt(q.Get("sequence"), 10, 64)
	if service == "" || err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
		return
	}

	if err := h.service.SetCursor(r.Context(), service, sequence); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeEmptyOK(w)
}

// GetCursor はリードレプリカからカーソルを返す。
// GET /cursor?service=...
func (h *CursorHandler) GetCursor(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
		return
	}

	state, err := h.service.GetCursor(r.Context(), service)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cursorResponse{
		Service:  state.Service,
		Sequence: state.Sequence,
	})
}
