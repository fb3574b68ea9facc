package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/skygate/internal/repository"
)

// healthCheckTimeout は各ストアへのPingのタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthHandler は書き込みストアとリードレプリカの疎通を確認するハンドラー。
type HealthHandler struct {
	checks map[string]repository.Pinger
}

// NewHealthHandler はHealthHandlerを生成する。checksのキーはログに出す名前。
func NewHealthHandler(checks map[string]repository.Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health は疎通確認の結果を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			slog.Warn("health check failed",
				slog.String("store", name),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
