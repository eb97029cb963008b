// Package cleanup はプレゼンスセッション履歴の自動削除ジョブを提供する。
// 保持期間を超過したセッション行を削除するが、ユーザーごとの最新行は残す。
// 最新行を消すとプレゼンス一覧からそのユーザーが消えてしまうため。
// 閲覧イベント（article_views）は閲覧数と件数が一致する必要があるため削除しない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は保持期間を超過したセッション行の削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // セッション行の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: 90,
	}
}

const deleteQuery = `DELETE FROM user_sessions s
	WHERE s.last_seen < NOW() - make_interval(days => $1)
	  AND EXISTS (
	      SELECT 1 FROM user_sessions newer
	      WHERE newer.username = s.username
	        AND (newer.last_seen > s.last_seen
	             OR (newer.last_seen = s.last_seen AND newer.id > s.id))
	  )`

// Run は保持期間を超過したセッション行を削除する。
// 同じユーザーにより新しい行が存在する行のみが対象となる。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, deleteQuery, j.RetentionDays)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start はコンテキストがキャンセルされるまでintervalごとにRunを実行する。
// 失敗はログに記録し、次の実行を待つ。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
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
