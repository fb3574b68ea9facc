package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/skygate/internal/model"
)

// maxQueueBodyBytes は取り込みキューのリクエストボディ上限。
const maxQueueBodyBytes = 8 << 20

// Ingestor はキューハンドラーが必要とするサービスインターフェース。
type Ingestor interface {
	ApplyBatch(ctx context.Context, events []model.IngestionEvent) error
}

// QueueHandler は取り込みキューのHTTPハンドラー。
type QueueHandler struct {
	ingestor Ingestor
}

// NewQueueHandler はQueueHandlerを生成する。
func NewQueueHandler(ingestor Ingestor) *QueueHandler {
	return &QueueHandler{ingestor: ingestor}
}

// createPostRequest は追加キューの1要素。
type createPostRequest struct {
	URI      string   `json:"uri"`
	CID      string   `json:"cid"`
	Sequence *int64   `json:"sequence,omitempty"`
	Prev     string   `json:"prev,omitempty"`
	Author   string   `json:"author,omitempty"`
	Feeds    []string `json:"feeds,omitempty"`
}

// deletePostRequest は削除キューの1要素。
type deletePostRequest struct {
	URI string `json:"uri"`
}

// Create は投稿の追加バッチを適用する。
// PUT /queue/create
func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body []createPostRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}

	events := make([]model.IngestionEvent, 0, len(body))
	for _, p := range body {
		events = append(events, model.IngestionEvent{
			Kind: model.EventCreate,
			Post: model.PostRecord{
				URI:      p.URI,
				CID:      p.CID,
				Author:   p.Author,
				Prev:     p.Prev,
				Sequence: p.Sequence,
				Feeds:    p.Feeds,
			},
		})
	}

	h.apply(w, r, events)
}

// Delete は投稿の削除バッチを適用する。
// PUT /queue/delete
func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var body []deletePostRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}

	events := make([]model.IngestionEvent, 0, len(body))
	for _, p := range body {
		events = append(events, model.IngestionEvent{
			Kind: model.EventDelete,
			Post: model.PostRecord{URI: p.URI},
		})
	}

	h.apply(w, r, events)
}

func (h *QueueHandler) apply(w http.ResponseWriter, r *http.Request, events []model.IngestionEvent) {
	if err := h.ingestor.ApplyBatch(r.Context(), events); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeEmptyOK(w)
}

// decodeJSONBody はリクエストボディをデコードする。失敗した場合は400を書き込んでfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueueBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError())
		return false
	}
	return true
}
