// Package repository はデータ永続化のインターフェースと実装を提供する。
// 書き込みはdatabase/sql（lib/pq）の書き込みストア、読み取りはpgxpoolのリードレプリカを使う。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/skygate/internal/model"
)

// PostReader はフィード投稿の読み取りインターフェース（リードレプリカ）。
type PostReader interface {
	// ListByAlgorithm は指定アルゴリズムの投稿を(indexed_at, uri)の降順で取得する。
	// beforeが指定された場合はその位置より古い投稿のみを返す。最大limit件。
	ListByAlgorithm(ctx context.Context, algorithm string, before *model.FeedPosition, limit int) ([]model.PostReference, error)
}

// PostWriter はフィード投稿の書き込みインターフェース（書き込みストア）。
type PostWriter interface {
	// ApplyBatch は削除と追加を1トランザクションで適用する。削除を先に行う。
	// 既存の(uri, algorithm)への追加と存在しないURIの削除は何もしない。
	ApplyBatch(ctx context.Context, deletes []string, creates []model.IndexedPost) error
}

// CursorStateReader は購読カーソルの読み取りインターフェース（リードレプリカ）。
type CursorStateReader interface {
	// FindByService はサービスのカーソルを取得する。見つからない場合はnilを返す。
	FindByService(ctx context.Context, service string) (*model.CursorState, error)
}

// CursorStateWriter は購読カーソルの書き込みインターフェース（書き込みストア）。
type CursorStateWriter interface {
	// Upsert はサービスのカーソルを作成または上書きする。
	Upsert(ctx context.Context, state model.CursorState) error
}

// VisitorRepository は訪問記録の永続化インターフェース。
type VisitorRepository interface {
	// Insert は訪問記録を1件追記する。
	Insert(ctx context.Context, record *model.VisitorRecord) error
}

// AccountRepository はアカウント情報の読み取りインターフェース。
type AccountRepository interface {
	// GetAccount はDIDでアカウントを取得する。flagsで無効化・テイクダウン済みを含めるか指定する。
	// 見つからない場合はnilを返す。
	GetAccount(ctx context.Context, did string, flags model.AvailabilityFlags) (*model.Account, error)
}

// EmailTokenRepository はアカウント操作トークンの永続化インターフェース。
type EmailTokenRepository interface {
	// Upsert は(purpose, did)ごとに1件のトークンを保存する。既存のトークンは置き換える。
	Upsert(ctx context.Context, token *model.AccountActionToken, requestedAt time.Time) error

	// DeleteRequestedBefore は指定時刻より前に発行されたトークンを削除し、削除件数を返す。
	DeleteRequestedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Pinger は接続確認のインターフェース。ヘルスチェックで使う。
type Pinger interface {
	PingContext(ctx context.Context) error
}
