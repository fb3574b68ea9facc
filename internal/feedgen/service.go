package feedgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

const (
	// DefaultLimit はlimit未指定時の件数。
	DefaultLimit = 50
	// MaxLimit は1ページの最大件数。
	MaxLimit = 100
)

// ErrUnknownAlgorithm はフィードURIが登録済みアルゴリズムに対応しないことを示す。
var ErrUnknownAlgorithm = errors.New("unknown feed algorithm")

var tracer = otel.Tracer("github.com/hitoshi/skygate/internal/feedgen")

// SkeletonItem はフィードスケルトンの1要素。
type SkeletonItem struct {
	Post string `json:"post"`
}

// Skeleton はフィードスケルトンのレスポンス。
// 次のページがない場合Cursorは空になる。
type Skeleton struct {
	Cursor string         `json:"cursor,omitempty"`
	Feed   []SkeletonItem `json:"feed"`
}

// Service はフィードスケルトン配信のサービス層。
// 読み取りはリードレプリカのみを使う。
type Service struct {
	registry *Registry
	posts    repository.PostReader
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(registry *Registry, posts repository.PostReader, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		registry: registry,
		posts:    posts,
		metrics:  mc,
	}
}

// ClampLimit は要求件数を[1, MaxLimit]に丸める。nilの場合はDefaultLimit。
func ClampLimit(limit *int) int {
	if limit == nil {
		return DefaultLimit
	}
	switch {
	case *limit < 1:
		return 1
	case *limit > MaxLimit:
		return MaxLimit
	default:
		return *limit
	}
}

// Serve はフィードURIに対応するアルゴリズムの1ページを返す。
// フロー: アルゴリズム解決 → カーソル復号 → limit+1件取得 → 次カーソル生成
func (s *Service) Serve(ctx context.Context, q model.FeedQuery) (*Skeleton, error) {
	ctx, span := tracer.Start(ctx, "feedgen.Serve")
	defer span.End()

	// 1. アルゴリズム解決
	algorithm, ok := s.registry.Resolve(q.Feed)
	if !ok {
		return nil, ErrUnknownAlgorithm
	}
	span.SetAttributes(attribute.String("feed.algorithm", algorithm))
	s.metrics.RecordFeedRequest(algorithm)

	// 2. カーソル復号
	var before *model.FeedPosition
	if q.Cursor != "" {
		pos, err := DecodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		before = &pos
	}

	// 3. 次ページの有無を判定するためlimit+1件取得
	limit := ClampLimit(q.Limit)
	posts, err := s.posts.ListByAlgorithm(ctx, algorithm, before, limit+1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list posts failed")
		return nil, fmt.Errorf("failed to list posts for %s: %w", algorithm, err)
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	skeleton := &Skeleton{Feed: make([]SkeletonItem, 0, len(posts))}
	for _, p := range posts {
		skeleton.Feed = append(skeleton.Feed, SkeletonItem{Post: p.URI})
	}

	// 4. 次カーソル生成
	if hasMore {
		last := posts[len(posts)-1]
		cursor, err := EncodeCursor(model.FeedPosition{IndexedAt: last.IndexedAt, URI: last.URI})
		if err != nil {
			return nil, err
		}
		skeleton.Cursor = cursor
	}

	s.metrics.RecordPostsServed(len(skeleton.Feed))
	slog.Debug("feed skeleton served",
		slog.String("algorithm", algorithm),
		slog.Int("count", len(skeleton.Feed)),
		slog.Bool("has_more", hasMore),
	)

	return skeleton, nil
}
