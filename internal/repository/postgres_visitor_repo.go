package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/skygate/internal/model"
)

// PostgresVisitorRepo は訪問記録リポジトリ。
type PostgresVisitorRepo struct {
	db *sql.DB
}

// NewPostgresVisitorRepo はPostgresVisitorRepoを生成する。
func NewPostgresVisitorRepo(db *sql.DB) *PostgresVisitorRepo {
	return &PostgresVisitorRepo{db: db}
}

// Insert は訪問記録を1件追記する。IDが空の場合はUUIDを採番する。
func (r *PostgresVisitorRepo) Insert(ctx context.Context, record *model.VisitorRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO visitor (id, did, service, visited_at) VALUES ($1, $2, $3, $4)`,
		record.ID, record.Visitor, record.Service, record.VisitedAt,
	)
	if err != nil {
		return fmt.Errorf("訪問記録の追加に失敗しました: %w", err)
	}
	return nil
}

var _ VisitorRepository = (*PostgresVisitorRepo)(nil)
