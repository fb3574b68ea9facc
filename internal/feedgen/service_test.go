package feedgen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/skygate/internal/model"
)

// mockPostReader はrepository.PostReaderのモック。
type mockPostReader struct {
	listFn func(ctx context.Context, algorithm string, before *model.FeedPosition, limit int) ([]model.PostReference, error)
}

func (m *mockPostReader) ListByAlgorithm(ctx context.Context, algorithm string, before *model.FeedPosition, limit int) ([]model.PostReference, error) {
	return m.listFn(ctx, algorithm, before, limit)
}

// memoryPosts はリードレプリカのクエリと同じ順序・絞り込みを再現するインメモリ実装。
type memoryPosts map[string][]model.PostReference

func (m memoryPosts) ListByAlgorithm(_ context.Context, algorithm string, before *model.FeedPosition, limit int) ([]model.PostReference, error) {
	posts := append([]model.PostReference(nil), m[algorithm]...)
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].IndexedAt.Equal(posts[j].IndexedAt) {
			return posts[i].IndexedAt.After(posts[j].IndexedAt)
		}
		return posts[i].URI > posts[j].URI
	})

	var out []model.PostReference
	for _, p := range posts {
		if before != nil {
			older := p.IndexedAt.Before(before.IndexedAt) ||
				(p.IndexedAt.Equal(before.IndexedAt) && p.URI < before.URI)
			if !older {
				continue
			}
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func seedPosts(n int) []model.PostReference {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]model.PostReference, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, model.PostReference{
			URI: fmt.Sprintf("at://did:plc:author/app.bsky.feed.post/%03d", i),
			CID: fmt.Sprintf("cid%03d", i),
			// 2件ずつ同じ時刻にして同時刻のURI順も確認する
			IndexedAt: base.Add(time.Duration(i/2) * time.Second),
		})
	}
	return posts
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(nil))
	assert.Equal(t, 1, ClampLimit(intPtr(0)))
	assert.Equal(t, 1, ClampLimit(intPtr(-10)))
	assert.Equal(t, 30, ClampLimit(intPtr(30)))
	assert.Equal(t, MaxLimit, ClampLimit(intPtr(MaxLimit)))
	assert.Equal(t, MaxLimit, ClampLimit(intPtr(1000)))
}

func TestServe_UnknownAlgorithm(t *testing.T) {
	reader := &mockPostReader{listFn: func(context.Context, string, *model.FeedPosition, int) ([]model.PostReference, error) {
		t.Fatal("reader should not be called for an unknown algorithm")
		return nil, nil
	}}
	s := NewService(NewRegistry(testPublisher), reader, nil)

	_, err := s.Serve(context.Background(), model.FeedQuery{Feed: "at://did:plc:publisher/app.bsky.feed.generator/nope"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestServe_InvalidCursor(t *testing.T) {
	s := NewService(NewRegistry(testPublisher), memoryPosts{}, nil)

	_, err := s.Serve(context.Background(), model.FeedQuery{
		Feed:   NewRegistry(testPublisher).URI(AlgorithmBlacksky),
		Cursor: "not-a-cursor!",
	})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

// 投稿のない既知アルゴリズムは空のフィードを返すこと
func TestServe_EmptyFeed(t *testing.T) {
	registry := NewRegistry(testPublisher)
	s := NewService(registry, memoryPosts{}, nil)

	sk, err := s.Serve(context.Background(), model.FeedQuery{Feed: registry.URI(AlgorithmBlackskyMedia)})
	require.NoError(t, err)
	assert.Empty(t, sk.Feed)
	assert.NotNil(t, sk.Feed)
	assert.Empty(t, sk.Cursor)
}

func TestServe_RequestsLimitPlusOne(t *testing.T) {
	registry := NewRegistry(testPublisher)
	var gotLimit int
	var gotAlgorithm string
	reader := &mockPostReader{listFn: func(_ context.Context, algorithm string, _ *model.FeedPosition, limit int) ([]model.PostReference, error) {
		gotAlgorithm = algorithm
		gotLimit = limit
		return nil, nil
	}}
	s := NewService(registry, reader, nil)

	_, err := s.Serve(context.Background(), model.FeedQuery{Feed: registry.URI(AlgorithmBlacksky), Limit: intPtr(500)})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit+1, gotLimit)
	assert.Equal(t, AlgorithmBlacksky, gotAlgorithm)

	_, err = s.Serve(context.Background(), model.FeedQuery{Feed: registry.URI(AlgorithmBlacksky)})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit+1, gotLimit)
}

func TestServe_StoreFailure(t *testing.T) {
	registry := NewRegistry(testPublisher)
	storeErr := errors.New("replica unavailable")
	reader := &mockPostReader{listFn: func(context.Context, string, *model.FeedPosition, int) ([]model.PostReference, error) {
		return nil, storeErr
	}}
	s := NewService(registry, reader, nil)

	_, err := s.Serve(context.Background(), model.FeedQuery{Feed: registry.URI(AlgorithmBlacksky)})
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrUnknownAlgorithm)
}

// ページを辿ると全件が重複・欠落なく降順で返ること
func TestServe_PaginationVisitsEveryPostOnce(t *testing.T) {
	registry := NewRegistry(testPublisher)
	all := seedPosts(23)
	s := NewService(registry, memoryPosts{AlgorithmBlacksky: all}, nil)

	seen := make(map[string]bool)
	var order []string
	cursor := ""
	pages := 0
	for {
		sk, err := s.Serve(context.Background(), model.FeedQuery{
			Feed:   registry.URI(AlgorithmBlacksky),
			Limit:  intPtr(5),
			Cursor: cursor,
		})
		require.NoError(t, err)
		pages++
		assert.LessOrEqual(t, len(sk.Feed), 5)

		for _, item := range sk.Feed {
			assert.False(t, seen[item.Post], "duplicate post %s", item.Post)
			seen[item.Post] = true
			order = append(order, item.Post)
		}

		if sk.Cursor == "" {
			break
		}
		cursor = sk.Cursor
		require.Less(t, pages, 10, "pagination did not terminate")
	}

	assert.Len(t, seen, len(all))
	assert.Equal(t, 5, pages)

	// 新しい順（同時刻はURIの降順）
	assert.Equal(t, all[22].URI, order[0])
	assert.Equal(t, all[21].URI, order[1])
	assert.Equal(t, all[0].URI, order[len(order)-1])
}

// ちょうどlimit件の場合は次カーソルを返さないこと
func TestServe_ExactPageHasNoCursor(t *testing.T) {
	registry := NewRegistry(testPublisher)
	s := NewService(registry, memoryPosts{AlgorithmBlacksky: seedPosts(5)}, nil)

	sk, err := s.Serve(context.Background(), model.FeedQuery{Feed: registry.URI(AlgorithmBlacksky), Limit: intPtr(5)})
	require.NoError(t, err)
	assert.Len(t, sk.Feed, 5)
	assert.Empty(t, sk.Cursor)
}

// アルゴリズムごとに投稿が分離されていること
func TestServe_AlgorithmsAreIsolated(t *testing.T) {
	registry := NewRegistry(testPublisher)
	media := []model.PostReference{{URI: "at://did:plc:x/app.bsky.feed.post/media", IndexedAt: time.Now()}}
	s := NewService(registry, memoryPosts{
		AlgorithmBlacksky:      seedPosts(3),
		AlgorithmBlackskyMedia: media,
	}, nil)

	sk, err := s.Serve(context.Background(), model.FeedQuery{Feed: registry.URI(AlgorithmBlackskyMedia)})
	require.NoError(t, err)
	require.Len(t, sk.Feed, 1)
	assert.Equal(t, media[0].URI, sk.Feed[0].Post)
}
