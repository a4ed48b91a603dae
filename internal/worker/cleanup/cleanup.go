// Package cleanup はworkerサブコマンドが定期実行する削除ジョブを提供する。
// 期限切れ・失効済みのリフレッシュトークンと、更新の止まったカートの保存行を削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/storefront/internal/metrics"
)

// Job は1回分の削除処理。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// TokenDeleter はリフレッシュトークンの削除を行う。auth.Serviceが実装する。
type TokenDeleter interface {
	DeleteExpiredTokens(ctx context.Context, retention time.Duration) (int64, error)
}

// TokenCleanupJob は期限切れまたは失効したリフレッシュトークンを削除するジョブ。
// 失効直後のトークンは再利用検知のログ調査用にRetentionの間だけ残す。
type TokenCleanupJob struct {
	tokens    TokenDeleter
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	Retention time.Duration
}

// NewTokenCleanupJob は新しいTokenCleanupJobを生成する。
// デフォルトの保持期間は7日。
func NewTokenCleanupJob(tokens TokenDeleter, logger *slog.Logger, m metrics.MetricsCollector) *TokenCleanupJob {
	if m == nil {
		m = metrics.Nop{}
	}
	return &TokenCleanupJob{
		tokens:    tokens,
		logger:    logger,
		metrics:   m,
		Retention: 7 * 24 * time.Hour,
	}
}

// Name はログに使うジョブ名を返す。
func (j *TokenCleanupJob) Name() string { return "refresh_tokens" }

// Run は保持期間を超えたトークンを削除する。削除対象がなくてもエラーにしない。
func (j *TokenCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.tokens.DeleteExpiredTokens(ctx, j.Retention)
	if err != nil {
		j.logger.Error("refresh token cleanup failed",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("failed to clean up refresh tokens: %w", err)
	}

	j.metrics.RecordTokensDeleted(deleted)
	j.logger.Info("refresh token cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StaleCartJob は一定期間更新されていないカートの保存行を削除するジョブ。
// 管理画面の「現在のカート」に放置されたカートが残り続けないようにする。
type StaleCartJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
}

// NewStaleCartJob は新しいStaleCartJobを生成する。
// デフォルトの保持日数は30日。
func NewStaleCartJob(db Executor, logger *slog.Logger) *StaleCartJob {
	return &StaleCartJob{
		db:            db,
		logger:        logger,
		RetentionDays: 30,
	}
}

// Name はログに使うジョブ名を返す。
func (j *StaleCartJob) Name() string { return "cart_items" }

// Run はupdated_atがRetentionDays日前より古いcart_itemsをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *StaleCartJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM cart_items WHERE updated_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("stale cart cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("failed to clean up stale carts: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to get deleted row count",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to get deleted row count: %w", err)
	}

	j.logger.Info("stale cart cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

var (
	_ Job = (*TokenCleanupJob)(nil)
	_ Job = (*StaleCartJob)(nil)
)
