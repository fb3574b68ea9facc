package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/skygate/internal/model"
)

// PostgresPostRepo は書き込みストアの投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// ApplyBatch は削除と追加を同一トランザクションで適用する。
// 削除はURI単位で全アルゴリズムの行を消し、追加は(uri, algorithm)の重複を無視する。
func (r *PostgresPostRepo) ApplyBatch(ctx context.Context, deletes []string, creates []model.IndexedPost) error {
	if len(deletes) == 0 && len(creates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(deletes) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM post WHERE uri = ANY($1)`,
			pq.Array(deletes),
		); err != nil {
			return fmt.Errorf("投稿の削除に失敗しました: %w", err)
		}
	}

	if len(creates) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO post (uri, cid, author, prev, sequence, algorithm, indexed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (uri, algorithm) DO NOTHING`,
		)
		if err != nil {
			return fmt.Errorf("failed to prepare post insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range creates {
			if _, err := stmt.ExecContext(ctx,
				p.URI, p.CID, p.Author, nullString(p.Prev), nullInt64(p.Sequence), p.Algorithm, p.IndexedAt,
			); err != nil {
				return fmt.Errorf("投稿の追加に失敗しました（%s）: %w", p.URI, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

var _ PostWriter = (*PostgresPostRepo)(nil)
