package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skygate/internal/checkpoint"
	"github.com/hitoshi/skygate/internal/feedgen"
	"github.com/hitoshi/skygate/internal/ingest"
	"github.com/hitoshi/skygate/internal/middleware"
	"github.com/hitoshi/skygate/internal/model"
)

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeEmptyOK はボディなしの200を返す。
func writeEmptyOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// 原因の詳細はログのみに記録し、レスポンスには固定メッセージを返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, apiErr := mapServiceError(err)

	if statusCode >= http.StatusInternalServerError {
		slog.Error("internal server error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", statusCode),
			slog.String("error", err.Error()),
		)
	}

	writeAPIErrorResponse(w, statusCode, apiErr)
}

// mapServiceError はエラーをHTTPステータスコードとAPIErrorにマッピングする。
func mapServiceError(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, feedgen.ErrUnknownAlgorithm), errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound, model.NewNotFoundError()
	case errors.Is(err, feedgen.ErrInvalidCursor), errors.Is(err, checkpoint.ErrInvalidState):
		return http.StatusBadRequest, model.NewBadRequestError()
	case errors.Is(err, ingest.ErrInvalidEvent):
		return http.StatusUnprocessableEntity, model.NewUnprocessableError()
	default:
		return http.StatusInternalServerError, model.NewInternalError()
	}
}
