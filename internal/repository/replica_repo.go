package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hitoshi/skygate/internal/model"
)

// ReplicaQuerier はリードレプリカへの問い合わせに使う最小インターフェース。
// *pgxpool.Poolが満たす。
type ReplicaQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// ReplicaPostRepo はリードレプリカから投稿を読み取るリポジトリ。
type ReplicaPostRepo struct {
	db ReplicaQuerier
}

// NewReplicaPostRepo はReplicaPostRepoを生成する。
func NewReplicaPostRepo(db ReplicaQuerier) *ReplicaPostRepo {
	return &ReplicaPostRepo{db: db}
}

// ListByAlgorithm は指定アルゴリズムの投稿を(indexed_at, uri)の降順で最大limit件取得する。
func (r *ReplicaPostRepo) ListByAlgorithm(ctx context.Context, algorithm string, before *model.FeedPosition, limit int) ([]model.PostReference, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		rows, err = r.db.Query(ctx,
			`SELECT uri, cid, indexed_at FROM post
			 WHERE algorithm = $1
			 ORDER BY indexed_at DESC, uri DESC
			 LIMIT $2`,
			algorithm, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT uri, cid, indexed_at FROM post
			 WHERE algorithm = $1 AND (indexed_at, uri) < ($2, $3)
			 ORDER BY indexed_at DESC, uri DESC
			 LIMIT $4`,
			algorithm, before.IndexedAt, before.URI, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}

	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PostReference, error) {
		var p model.PostReference
		err := row.Scan(&p.URI, &p.CID, &p.IndexedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("投稿のスキャンに失敗しました: %w", err)
	}

	return posts, nil
}

var _ PostReader = (*ReplicaPostRepo)(nil)

// ReplicaCursorStateRepo はリードレプリカから購読カーソルを読み取るリポジトリ。
type ReplicaCursorStateRepo struct {
	db ReplicaQuerier
}

// NewReplicaCursorStateRepo はReplicaCursorStateRepoを生成する。
func NewReplicaCursorStateRepo(db ReplicaQuerier) *ReplicaCursorStateRepo {
	return &ReplicaCursorStateRepo{db: db}
}

// FindByService はサービスのカーソルを取得する。見つからない場合はnilを返す。
func (r *ReplicaCursorStateRepo) FindByService(ctx context.Context, service string) (*model.CursorState, error) {
	state := &model.CursorState{}
	err := r.db.QueryRow(ctx,
		`SELECT service, cursor FROM sub_state WHERE service = $1`,
		service,
	).Scan(&state.Service, &state.Sequence)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カーソルの取得に失敗しました: %w", err)
	}
	return state, nil
}

var _ CursorStateReader = (*ReplicaCursorStateRepo)(nil)

// ReplicaPinger はReplicaQuerierをPingerに適合させる。
type ReplicaPinger struct {
	db ReplicaQuerier
}

// NewReplicaPinger はReplicaPingerを生成する。
func NewReplicaPinger(db ReplicaQuerier) *ReplicaPinger {
	return &ReplicaPinger{db: db}
}

// PingContext はリードレプリカへの接続を確認する。
func (p *ReplicaPinger) PingContext(ctx context.Context) error {
	return p.db.Ping(ctx)
}

var _ Pinger = (*ReplicaPinger)(nil)
