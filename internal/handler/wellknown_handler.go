package handler

import (
	"net/http"
	"strings"

	"github.com/hitoshi/skygate/internal/model"
)

// DIDDocument はフィードジェネレーターのDID文書。
type DIDDocument struct {
	Context []string     `json:"@context"`
	ID      string       `json:"id"`
	Service []DIDService `json:"service"`
}

// DIDService はDID文書のサービスエントリ。
type DIDService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// WellKnownHandler は/.well-known/did.jsonを返すハンドラー。
type WellKnownHandler struct {
	serviceDID string
	hostname   string
}

// NewWellKnownHandler はWellKnownHandlerを生成する。
func NewWellKnownHandler(serviceDID, hostname string) *WellKnownHandler {
	return &WellKnownHandler{serviceDID: serviceDID, hostname: hostname}
}

// Document はサービスDIDがホスト名で終わる場合のみDID文書を返す。
func (h *WellKnownHandler) Document() (*DIDDocument, bool) {
	if h.hostname == "" || !strings.HasSuffix(h.serviceDID, h.hostname) {
		return nil, false
	}
	return &DIDDocument{
		Context: []string{"https://www.w3.org/ns/did/v1"},
		ID:      h.serviceDID,
		Service: []DIDService{{
			ID:              "#bsky_fg",
			Type:            "BskyFeedGenerator",
			ServiceEndpoint: "https://" + h.hostname,
		}},
	}, true
}

// DIDJSON は/.well-known/did.jsonを処理する。
// GET /.well-known/did.json
func (h *WellKnownHandler) DIDJSON(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.Document()
	if !ok {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
