package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skygate/internal/middleware"
	"github.com/hitoshi/skygate/internal/model"
)

// AccountActionService はアカウント操作ハンドラーが必要とするサービスインターフェース。
type AccountActionService interface {
	RequestEmailConfirmation(ctx context.Context, did string) error
	RequestAccountDelete(ctx context.Context, did string) error
}

// AccountHandler はアカウント操作トークン発行のHTTPハンドラー。
type AccountHandler struct {
	service AccountActionService
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountActionService) *AccountHandler {
	return &AccountHandler{service: service}
}

// RequestEmailConfirmation はメールアドレス確認トークンを発行する。
// POST /xrpc/com.atproto.server.requestEmailConfirmation
func (h *AccountHandler) RequestEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "requestEmailConfirmation", h.service.RequestEmailConfirmation)
}

// RequestAccountDelete はアカウント削除トークンを発行する。
// POST /xrpc/com.atproto.server.requestAccountDelete
func (h *AccountHandler) RequestAccountDelete(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "requestAccountDelete", h.service.RequestAccountDelete)
}

// handle は発行処理を実行する。
// アカウントの存在有無を外部に漏らさないため、失敗理由に関わらず500を返す。
func (h *AccountHandler) handle(w http.ResponseWriter, r *http.Request, action string, issue func(context.Context, string) error) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal.IsAnonymous() {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := issue(r.Context(), principal.DID()); err != nil {
		slog.Error("account action failed",
			slog.String("action", action),
			slog.String("did", principal.DID()),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	writeEmptyOK(w)
}
