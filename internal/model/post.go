package model

import "time"

// PostReference はフィードスケルトンで返す投稿参照を表す。
// IndexedAtとURIの組が並び順のキーになる。
type PostReference struct {
	URI       string
	CID       string
	IndexedAt time.Time
}

// PostRecord は取り込みキューで受け取る投稿データを表す。
// どのアルゴリズムに属するかは上流のランキング処理が決めてFeedsで渡す。
type PostRecord struct {
	URI      string
	CID      string
	Author   string
	Prev     string
	Sequence *int64
	Feeds    []string
}

// EventKind は取り込みイベントの種別を表す。
type EventKind string

const (
	// EventCreate は投稿の追加イベント。
	EventCreate EventKind = "create"
	// EventDelete は投稿の削除イベント。
	EventDelete EventKind = "delete"
)

// IngestionEvent は取り込みキューの1イベントを表す。
type IngestionEvent struct {
	Kind EventKind
	Post PostRecord
}

// FeedQuery はフィードスケルトン取得のクエリを表す。
// Limitがnilの場合はデフォルト件数を使う。
type FeedQuery struct {
	Feed   string
	Limit  *int
	Cursor string
}

// CursorState は上流サービスごとの購読カーソル（最後に適用したシーケンス番号）を表す。
type CursorState struct {
	Service  string
	Sequence int64
}

// AnonymousVisitor は未認証の訪問者を表す識別子。
const AnonymousVisitor = "anonymous"

// VisitorRecord はフィードスケルトン取得1回分の訪問記録。追記のみ。
type VisitorRecord struct {
	ID        string
	Visitor   string
	Service   string
	VisitedAt time.Time
}

// FeedPosition はフィード上の位置（カーソルが指す最後の投稿）を表す。
// この位置より古い投稿が次のページになる。
type FeedPosition struct {
	IndexedAt time.Time
	URI       string
}

// IndexedPost は書き込みストアに保存する1アルゴリズム分の投稿行を表す。
type IndexedPost struct {
	URI       string
	CID       string
	Author    string
	Prev      string
	Sequence  *int64
	Algorithm string
	IndexedAt time.Time
}
