package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/skygate/internal/model"
)

// PostgresCursorStateRepo は書き込みストアの購読カーソルリポジトリ。
type PostgresCursorStateRepo struct {
	db *sql.DB
}

// NewPostgresCursorStateRepo はPostgresCursorStateRepoを生成する。
func NewPostgresCursorStateRepo(db *sql.DB) *PostgresCursorStateRepo {
	return &PostgresCursorStateRepo{db: db}
}

// Upsert はサービスのカーソルを作成または上書きする。
func (r *PostgresCursorStateRepo) Upsert(ctx context.Context, state model.CursorState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sub_state (service, cursor)
		 VALUES ($1, $2)
		 ON CONFLICT (service) DO UPDATE SET cursor = EXCLUDED.cursor`,
		state.Service, state.Sequence,
	)
	if err != nil {
		return fmt.Errorf("カーソルの保存に失敗しました: %w", err)
	}
	return nil
}

var _ CursorStateWriter = (*PostgresCursorStateRepo)(nil)
