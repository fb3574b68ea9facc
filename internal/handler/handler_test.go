package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/skygate/internal/auth"
	"github.com/hitoshi/skygate/internal/checkpoint"
	"github.com/hitoshi/skygate/internal/feedgen"
	"github.com/hitoshi/skygate/internal/ingest"
	"github.com/hitoshi/skygate/internal/middleware"
	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

const (
	testServiceKey = "test-service-key"
	testGoodToken  = "good-token"
	testIssuer     = "did:plc:alice"
	testServiceDID = "did:web:feed.example.com"
	testHostname   = "feed.example.com"
)

// --- モック定義 ---

// mockFeedService はFeedSkeletonServiceのモック。
type mockFeedService struct {
	serveFn func(ctx context.Context, q model.FeedQuery) (*feedgen.Skeleton, error)
	queries []model.FeedQuery
}

func (m *mockFeedService) Serve(ctx context.Context, q model.FeedQuery) (*feedgen.Skeleton, error) {
	m.queries = append(m.queries, q)
	if m.serveFn != nil {
		return m.serveFn(ctx, q)
	}
	return &feedgen.Skeleton{Feed: []feedgen.SkeletonItem{}}, nil
}

// mockVisitorRecorder はVisitorRecorderのモック。
type mockVisitorRecorder struct {
	mu       sync.Mutex
	recorded []auth.Principal
}

func (m *mockVisitorRecorder) Record(_ context.Context, p auth.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, p)
}

func (m *mockVisitorRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recorded)
}

// mockCursorService はCursorServiceのモック。
type mockCursorService struct {
	setCursorFn func(ctx context.Context, service string, sequence int64) error
	getCursorFn func(ctx context.Context, service string) (*model.CursorState, error)
}

func (m *mockCursorService) SetCursor(ctx context.Context, service string, sequence int64) error {
	if m.setCursorFn != nil {
		return m.setCursorFn(ctx, service, sequence)
	}
	return nil
}

func (m *mockCursorService) GetCursor(ctx context.Context, service string) (*model.CursorState, error) {
	if m.getCursorFn != nil {
		return m.getCursorFn(ctx, service)
	}
	return nil, errors.New("not implemented")
}

// mockIngestor はIngestorのモック。
type mockIngestor struct {
	applyBatchFn func(ctx context.Context, events []model.IngestionEvent) error
	batches      [][]model.IngestionEvent
}

func (m *mockIngestor) ApplyBatch(ctx context.Context, events []model.IngestionEvent) error {
	m.batches = append(m.batches, events)
	if m.applyBatchFn != nil {
		return m.applyBatchFn(ctx, events)
	}
	return nil
}

// mockAccountService はAccountActionServiceのモック。
type mockAccountService struct {
	confirmFn func(ctx context.Context, did string) error
	deleteFn  func(ctx context.Context, did string) error
}

func (m *mockAccountService) RequestEmailConfirmation(ctx context.Context, did string) error {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, did)
	}
	return nil
}

func (m *mockAccountService) RequestAccountDelete(ctx context.Context, did string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, did)
	}
	return nil
}

// mockPinger はrepository.Pingerのモック。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

// mockSessionVerifier はgoodTokenのみを受け入れるauth.SessionVerifier。
type mockSessionVerifier struct{}

func (mockSessionVerifier) Verify(_ context.Context, token string) (auth.SessionClaims, error) {
	if token == testGoodToken {
		return auth.SessionClaims{Issuer: testIssuer, Audience: testServiceDID, Raw: token}, nil
	}
	return auth.SessionClaims{}, auth.ErrInvalidCredential
}

// --- テストヘルパー ---

func newTestGateway() *auth.Gateway {
	return auth.NewGateway(auth.NewServiceKeyVerifier(testServiceKey), mockSessionVerifier{})
}

// withPrincipal はリクエストコンテキストに認証済みの呼び出し元を注入する。
func withPrincipal(r *http.Request, did string) *http.Request {
	p := auth.Authenticated(auth.SessionClaims{Issuer: did, Audience: testServiceDID})
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code, message string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d", w.Code, status)
	}
	body := decodeErrorBody(t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
	if body.Message != message {
		t.Errorf("message = %q, want %q", body.Message, message)
	}
}

// testRouterDeps はモックで構成したRouterDepsを返す。
type testRouterDeps struct {
	feed     *mockFeedService
	visitors *mockVisitorRecorder
	cursor   *mockCursorService
	ingestor *mockIngestor
	account  *mockAccountService
	replica  *mockPinger
	deps     *RouterDeps
}

func newTestRouterDeps(t *testing.T) *testRouterDeps {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		FeedRate:           100,
		FeedBurst:          100,
		AccountActionRate:  0.01,
		AccountActionBurst: 2,
		CleanupInterval:    time.Minute,
	})
	t.Cleanup(rl.Stop)

	td := &testRouterDeps{
		feed:     &mockFeedService{},
		visitors: &mockVisitorRecorder{},
		cursor:   &mockCursorService{},
		ingestor: &mockIngestor{},
		account:  &mockAccountService{},
		replica:  &mockPinger{},
	}
	td.deps = &RouterDeps{
		Gateway:        newTestGateway(),
		RateLimiter:    rl,
		FeedService:    td.feed,
		Visitors:       td.visitors,
		Ingestor:       td.ingestor,
		CursorService:  td.cursor,
		AccountService: td.account,
		ServiceDID:     testServiceDID,
		Hostname:       testHostname,
		HealthChecks: map[string]repository.Pinger{
			"primary": &mockPinger{},
			"replica": td.replica,
		},
	}
	return td
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown algorithm", feedgen.ErrUnknownAlgorithm, http.StatusNotFound, model.ErrCodeNotFound},
		{"invalid cursor", feedgen.ErrInvalidCursor, http.StatusBadRequest, model.ErrCodeValidation},
		{"wrapped invalid event", fmt.Errorf("event 0: %w", ingest.ErrInvalidEvent), http.StatusUnprocessableEntity, model.ErrCodeValidation},
		{"cursor not found", checkpoint.ErrNotFound, http.StatusNotFound, model.ErrCodeNotFound},
		{"invalid cursor state", checkpoint.ErrInvalidState, http.StatusBadRequest, model.ErrCodeValidation},
		{"other", errors.New("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := mapServiceError(tt.err)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if apiErr.Code != tt.code {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.code)
			}
		})
	}
}

// panickingIngestor は常にpanicするIngestor。
type panickingIngestor struct{}

func (panickingIngestor) ApplyBatch(context.Context, []model.IngestionEvent) error {
	panic("boom")
}
