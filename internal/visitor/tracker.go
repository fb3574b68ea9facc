// Package visitor はフィードスケルトン取得ごとの訪問記録を提供する。
// 記録は応答とは切り離して非同期に書き込み、失敗してもリクエストには影響しない。
package visitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/skygate/internal/auth"
	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

// Tracker は訪問記録を書き込みストアに非同期で追記する。
type Tracker struct {
	repo       repository.VisitorRepository
	serviceDID string
	metrics    metrics.MetricsCollector
	now        func() time.Time

	wg sync.WaitGroup
}

// NewTracker はTrackerを生成する。serviceDIDは匿名訪問の記録先サービスとして使う。
func NewTracker(repo repository.VisitorRepository, serviceDID string, mc metrics.MetricsCollector) *Tracker {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Tracker{
		repo:       repo,
		serviceDID: serviceDID,
		metrics:    mc,
		now:        time.Now,
	}
}

// RecordFor は呼び出し元から訪問記録を組み立てる。
// 認証済みならトークンの発行者とaudience、匿名なら"anonymous"と自サービスのDID。
func (t *Tracker) RecordFor(principal auth.Principal) *model.VisitorRecord {
	record := &model.VisitorRecord{
		ID:        uuid.NewString(),
		Visitor:   model.AnonymousVisitor,
		Service:   t.serviceDID,
		VisitedAt: t.now().UTC(),
	}
	if claims, ok := principal.Claims(); ok {
		record.Visitor = claims.Issuer
		record.Service = claims.Audience
	}
	return record
}

// Record は訪問記録をバックグラウンドで書き込む。呼び出し元は完了を待たない。
// リクエストのキャンセルは書き込みに伝播させない。
func (t *Tracker) Record(ctx context.Context, principal auth.Principal) {
	record := t.RecordFor(principal)
	detached := context.WithoutCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.write(detached, record)
	}()
}

func (t *Tracker) write(ctx context.Context, record *model.VisitorRecord) {
	if err := t.repo.Insert(ctx, record); err != nil {
		t.metrics.RecordVisitor("failed")
		slog.Warn("failed to record visitor",
			slog.String("visitor", record.Visitor),
			slog.String("service", record.Service),
			slog.String("error", err.Error()),
		)
		return
	}
	t.metrics.RecordVisitor("recorded")
}

// Wait は実行中の書き込みがすべて終わるまで待つ。シャットダウン時に使う。
func (t *Tracker) Wait() {
	t.wg.Wait()
}
