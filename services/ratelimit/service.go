package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Window is a sliding window over which failed logins are counted
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

// Limits caps failed logins per username. A zero limit disables that window.
type Limits struct {
	FailuresPerMinute int
	FailuresPerHour   int
}

// Enabled reports whether any window is limited
func (l Limits) Enabled() bool {
	return l.FailuresPerMinute > 0 || l.FailuresPerHour > 0
}

// Result is the outcome of a throttle check
type Result struct {
	Allowed        bool
	Remaining      int
	RetryAfter     time.Duration
	ViolatedWindow Window
	Reason         string
}

// LoginLimiter throttles password guessing by counting failed logins per
// username in PostgreSQL, so every replica sees the same counts.
type LoginLimiter struct {
	db     *sql.DB
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

// NewLoginLimiter creates a new LoginLimiter
func NewLoginLimiter(db *sql.DB, limits Limits, logger *zap.Logger) *LoginLimiter {
	return &LoginLimiter{
		db:     db,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Check reports whether another login attempt for username may proceed
func (l *LoginLimiter) Check(ctx context.Context, username string) (*Result, error) {
	key := scopeKey(username)
	now := l.now()

	windows := []struct {
		window Window
		limit  int
	}{
		{WindowMinute, l.limits.FailuresPerMinute},
		{WindowHour, l.limits.FailuresPerHour},
	}

	result := &Result{Allowed: true, Remaining: -1}
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}

		allowed, remaining, retryAfter, err := l.checkWindow(ctx, key, w.window, now, w.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s window: %w", w.window, err)
		}
		if !allowed {
			return &Result{
				Allowed:        false,
				RetryAfter:     retryAfter,
				ViolatedWindow: w.window,
				Reason:         fmt.Sprintf("exceeded %d failed logins per %s", w.limit, w.window),
			}, nil
		}
		if result.Remaining < 0 || remaining < result.Remaining {
			result.Remaining = remaining
		}
	}

	return result, nil
}

// RecordFailure counts one failed login for username
func (l *LoginLimiter) RecordFailure(ctx context.Context, username string) error {
	query := `
		INSERT INTO login_failures (scope_key, failed_at)
		VALUES ($1, $2)
	`
	if _, err := l.db.ExecContext(ctx, query, scopeKey(username), l.now()); err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	return nil
}

// Reset forgets the failures of username after a successful login
func (l *LoginLimiter) Reset(ctx context.Context, username string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM login_failures WHERE scope_key = $1`, scopeKey(username)); err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}

// checkWindow counts failures since the window start. When the limit is
// reached, retryAfter is the time until the oldest counted failure leaves
// the window.
func (l *LoginLimiter) checkWindow(ctx context.Context, key string, window Window, now time.Time, limit int) (allowed bool, remaining int, retryAfter time.Duration, err error) {
	start := now.Add(-windowLength(window))

	query := `
		SELECT COUNT(*), MIN(failed_at)
		FROM login_failures
		WHERE scope_key = $1
		  AND failed_at >= $2
	`

	var count int
	var oldest sql.NullTime
	if err := l.db.QueryRowContext(ctx, query, key, start).Scan(&count, &oldest); err != nil {
		return false, 0, 0, fmt.Errorf("failed to query login failures: %w", err)
	}

	if count >= limit {
		retryAfter = windowLength(window)
		if oldest.Valid {
			retryAfter = oldest.Time.Add(windowLength(window)).Sub(now)
		}
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, 0, retryAfter, nil
	}

	return true, limit - count, 0, nil
}

func windowLength(window Window) time.Duration {
	if window == WindowHour {
		return time.Hour
	}
	return time.Minute
}

// scopeKey normalizes the submitted username so case variants share a counter
func scopeKey(username string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(username))
}

// CleanupOldFailures removes failures older than olderThan
func (l *LoginLimiter) CleanupOldFailures(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := l.now().Add(-olderThan)

	result, err := l.db.ExecContext(ctx, `DELETE FROM login_failures WHERE failed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup login failures: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	l.logger.Info("cleaned up old login failures",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff_time", cutoff))

	return rowsAffected, nil
}

// StartCleanupWorker periodically deletes expired failures until ctx is done
func (l *LoginLimiter) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("started login failure cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := l.CleanupOldFailures(ctx, retention); err != nil {
				l.logger.Error("failed to cleanup login failures", zap.Error(err))
			}
		case <-ctx.Done():
			l.logger.Info("stopping login failure cleanup worker")
			return
		}
	}
}
