package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig は起動時の接続確認のリトライ設定。
type RetryConfig struct {
	// Attempts は疎通確認の最大試行回数。1以下の場合は1回のみ試行する。
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// PingTimeout は1回の疎通確認のタイムアウト。
	PingTimeout time.Duration
}

// DefaultRetryConfig はコンテナ起動直後のDBを待つためのリトライ設定を返す。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回はInitialBackoff、2倍ずつ増加し、MaxBackoffで頭打ちになる。
func (c RetryConfig) CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := c.InitialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return delay
}

// WaitForReady はデータベースに接続できるまで指数バックオフでPingを繰り返す。
// 最大試行回数に達した場合は最後のエラーを返す。ctxがキャンセルされた場合はctxのエラーを返す。
func WaitForReady(ctx context.Context, db *sql.DB, cfg RetryConfig) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := cfg.CalculateBackoff(attempt - 1)
			slog.Warn("database not ready, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", lastErr.Error()),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if lastErr = Ping(ctx, db, cfg.PingTimeout); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("database not ready after %d attempts: %w", attempts, lastErr)
}
