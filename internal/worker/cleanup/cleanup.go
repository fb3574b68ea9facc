// Package cleanup は期限切れのアカウント操作トークンの自動削除ジョブを提供する。
// 保持期間（デフォルト24時間）を超えたトークンを定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TokenPruner は期限切れトークンの削除を抽象化するインターフェース。
// repository.EmailTokenRepositoryが満たす。
type TokenPruner interface {
	DeleteRequestedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したトークンの自動削除ジョブ。
// 冪等な削除処理のため、何度実行しても結果は変わらない。
type CleanupJob struct {
	tokens    TokenPruner
	logger    *slog.Logger
	Retention time.Duration // トークンの保持期間（デフォルト: 24時間）
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(tokens TokenPruner, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &CleanupJob{
		tokens:    tokens,
		logger:    logger,
		Retention: retention,
		now:       time.Now,
	}
}

// Run は保持期間を超過したトークンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.Retention)

	deletedCount, err := j.tokens.DeleteRequestedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("トークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに残して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
