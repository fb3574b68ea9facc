// Package ingest は上流のイベントストリームから届く投稿の追加・削除バッチを
// 書き込みストアに適用する。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

// ErrInvalidEvent はバッチ内のイベントが不正であることを示す。
// 1件でも不正なイベントがあればバッチ全体を適用しない。
var ErrInvalidEvent = errors.New("invalid ingestion event")

var tracer = otel.Tracer("github.com/hitoshi/skygate/internal/ingest")

// AlgorithmSet は登録済みアルゴリズムの判定に使うインターフェース。
type AlgorithmSet interface {
	Has(name string) bool
}

// Queue は取り込みバッチを検証して書き込みストアに適用する。
type Queue struct {
	posts            repository.PostWriter
	algorithms       AlgorithmSet
	defaultAlgorithm string
	metrics          metrics.MetricsCollector
	now              func() time.Time
}

// NewQueue はQueueを生成する。
// defaultAlgorithmはフィード未指定の追加イベントに割り当てるアルゴリズム。
func NewQueue(posts repository.PostWriter, algorithms AlgorithmSet, defaultAlgorithm string, mc metrics.MetricsCollector) *Queue {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Queue{
		posts:            posts,
		algorithms:       algorithms,
		defaultAlgorithm: defaultAlgorithm,
		metrics:          mc,
		now:              time.Now,
	}
}

// ApplyBatch はイベント列を検証し、1トランザクションで適用する。
// 同じURIのイベントはバッチ内で最後のものが優先される。
// 削除が先行してから追加されたURIは、既存の行を消してから追加し直す。
func (q *Queue) ApplyBatch(ctx context.Context, events []model.IngestionEvent) error {
	if len(events) == 0 {
		return nil
	}

	batchID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "ingest.ApplyBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.batch_id", batchID),
		attribute.Int("ingest.events", len(events)),
	)

	// 1. すべて検証してから書き込む
	for i := range events {
		if err := q.validate(&events[i]); err != nil {
			slog.Warn("ingestion batch rejected",
				slog.String("batch_id", batchID),
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("event %d: %w", i, err)
		}
	}

	// 2. URIごとに畳み込む
	indexedAt := q.now().UTC().Truncate(time.Microsecond)
	deletes, creates := q.collapse(events, indexedAt)

	// 3. 適用
	if err := q.posts.ApplyBatch(ctx, deletes, creates); err != nil {
		q.metrics.RecordIngestBatchFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply batch failed")
		slog.Error("failed to apply ingestion batch",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to apply ingestion batch: %w", err)
	}

	q.metrics.RecordIngestEvents(string(model.EventDelete), len(deletes))
	q.metrics.RecordIngestEvents(string(model.EventCreate), len(creates))
	slog.Info("ingestion batch applied",
		slog.String("batch_id", batchID),
		slog.Int("events", len(events)),
		slog.Int("deleted_uris", len(deletes)),
		slog.Int("created_rows", len(creates)),
	)

	return nil
}

// validate は1件のイベントを検証する。
func (q *Queue) validate(ev *model.IngestionEvent) error {
	uri := strings.TrimSpace(ev.Post.URI)
	if !strings.HasPrefix(uri, "at://") || len(uri) == len("at://") {
		return fmt.Errorf("%w: uri must be an at:// uri", ErrInvalidEvent)
	}

	switch ev.Kind {
	case model.EventDelete:
		return nil
	case model.EventCreate:
		if strings.TrimSpace(ev.Post.CID) == "" {
			return fmt.Errorf("%w: cid is required for %s", ErrInvalidEvent, uri)
		}
		for _, feed := range ev.Post.Feeds {
			if !q.algorithms.Has(feed) {
				return fmt.Errorf("%w: unknown feed %q", ErrInvalidEvent, feed)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, ev.Kind)
	}
}

// collapse はURIごとに最後のイベントを採用し、削除URIと追加行に分ける。
func (q *Queue) collapse(events []model.IngestionEvent, indexedAt time.Time) ([]string, []model.IndexedPost) {
	last := make(map[string]int, len(events))
	deletedEarlier := make(map[string]bool)
	for i, ev := range events {
		uri := strings.TrimSpace(ev.Post.URI)
		if prev, ok := last[uri]; ok && events[prev].Kind == model.EventDelete {
			deletedEarlier[uri] = true
		}
		last[uri] = i
	}

	var deletes []string
	var creates []model.IndexedPost
	for i, ev := range events {
		uri := strings.TrimSpace(ev.Post.URI)
		if last[uri] != i {
			continue
		}

		if ev.Kind == model.EventDelete {
			deletes = append(deletes, uri)
			continue
		}

		if deletedEarlier[uri] {
			deletes = append(deletes, uri)
		}

		feeds := dedupe(ev.Post.Feeds)
		if len(feeds) == 0 {
			feeds = []string{q.defaultAlgorithm}
		}
		for _, feed := range feeds {
			creates = append(creates, model.IndexedPost{
				URI:       uri,
				CID:       strings.TrimSpace(ev.Post.CID),
				Author:    ev.Post.Author,
				Prev:      ev.Post.Prev,
				Sequence:  ev.Post.Sequence,
				Algorithm: feed,
				IndexedAt: indexedAt,
			})
		}
	}

	return deletes, creates
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
