package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/strivehq/hookgate/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			key_digest TEXT NOT NULL UNIQUE,
			expires_at DATETIME,
			last_used_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			url TEXT NOT NULL,
			event_types TEXT NOT NULL DEFAULT '[]',
			secret TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_triggered_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS delivery_logs (
			id TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_user ON credentials(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_subscription ON delivery_logs(subscription_id, created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Credentials ---

func (s *SQLiteStorage) CreateCredential(ctx context.Context, cred *models.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, name, key_digest, expires_at, last_used_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.UserID, cred.Name, cred.KeyDigest, nullTime(cred.ExpiresAt), nullTime(cred.LastUsedAt), cred.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetCredentialByDigest(ctx context.Context, digest string) (*models.Credential, error) {
	var cred models.Credential
	var expiresAt, lastUsedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, key_digest, expires_at, last_used_at, created_at FROM credentials WHERE key_digest = ?`, digest,
	).Scan(&cred.ID, &cred.UserID, &cred.Name, &cred.KeyDigest, &expiresAt, &lastUsedAt, &cred.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	cred.ExpiresAt = timePtr(expiresAt)
	cred.LastUsedAt = timePtr(lastUsedAt)
	return &cred, err
}

func (s *SQLiteStorage) ListCredentials(ctx context.Context, userID string) ([]models.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, key_digest, expires_at, last_used_at, created_at FROM credentials WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		var cred models.Credential
		var expiresAt, lastUsedAt sql.NullTime
		if err := rows.Scan(&cred.ID, &cred.UserID, &cred.Name, &cred.KeyDigest, &expiresAt, &lastUsedAt, &cred.CreatedAt); err != nil {
			return nil, err
		}
		cred.ExpiresAt = timePtr(expiresAt)
		cred.LastUsedAt = timePtr(lastUsedAt)
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (s *SQLiteStorage) TouchCredential(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE credentials SET last_used_at = ? WHERE id = ?`, when, id)
	return err
}

// --- Subscriptions ---

func (s *SQLiteStorage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	eventTypes, _ := json.Marshal(sub.EventTypes)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, url, event_types, secret, status, failure_count, last_triggered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.URL, string(eventTypes), sub.Secret, sub.Status, sub.FailureCount, nullTime(sub.LastTriggeredAt), sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanSubscription(row interface{ Scan(...interface{}) error }) (*models.Subscription, error) {
	var sub models.Subscription
	var eventTypes string
	var lastTriggeredAt sql.NullTime
	err := row.Scan(&sub.ID, &sub.UserID, &sub.URL, &eventTypes, &sub.Secret, &sub.Status, &sub.FailureCount, &lastTriggeredAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(eventTypes), &sub.EventTypes)
	sub.LastTriggeredAt = timePtr(lastTriggeredAt)
	return &sub, nil
}

const subscriptionColumns = `id, user_id, url, event_types, secret, status, failure_count, last_triggered_at, created_at, updated_at`

func (s *SQLiteStorage) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := s.scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStorage) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectSubscriptions(rows, "")
}

func (s *SQLiteStorage) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}

// EnableSubscription is the external re-enable path for auto-disabled
// subscriptions; it also clears the consecutive-failure counter.
func (s *SQLiteStorage) EnableSubscription(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?, failure_count = 0, updated_at = ? WHERE id = ?`,
		models.SubscriptionActive, time.Now().UTC(), id,
	)
	return err
}

// ListActiveSubscriptions returns active subscriptions whose event set
// matches eventType, optionally restricted to one owning user. Disabled
// subscriptions are excluded entirely.
func (s *SQLiteStorage) ListActiveSubscriptions(ctx context.Context, eventType, userID string) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status = ?`
	args := []interface{}{models.SubscriptionActive}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectSubscriptions(rows, eventType)
}

func (s *SQLiteStorage) collectSubscriptions(rows *sql.Rows, eventType string) ([]models.Subscription, error) {
	var subs []models.Subscription
	for rows.Next() {
		sub, err := s.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		if eventType == "" || matchesEventType(sub.EventTypes, eventType) {
			subs = append(subs, *sub)
		}
	}
	return subs, rows.Err()
}

func matchesEventType(subscribed []string, eventType string) bool {
	for _, sub := range subscribed {
		if sub == eventType || sub == "*" {
			return true
		}
		// wildcard matching: "goal.*" matches "goal.completed"
		if strings.HasSuffix(sub, ".*") {
			prefix := strings.TrimSuffix(sub, ".*")
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}

func (s *SQLiteStorage) RecordDeliverySuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET failure_count = 0, last_triggered_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id,
	)
	return err
}

// RecordDeliveryFailure increments the consecutive-failure counter and
// flips the subscription to disabled when the counter reaches the
// threshold. Both happen in one UPDATE so concurrent dispatches cannot
// lose an increment or double-apply the flip.
func (s *SQLiteStorage) RecordDeliveryFailure(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET failure_count = failure_count + 1,
		     status = CASE WHEN failure_count + 1 >= ? THEN ? ELSE status END,
		     last_triggered_at = ?, updated_at = ?
		 WHERE id = ?`,
		models.DisableThreshold, models.SubscriptionDisabled, at, at, id,
	)
	return err
}

// --- Delivery logs ---

func (s *SQLiteStorage) CreateDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_logs (id, subscription_id, event_type, payload, status_code, success, error, attempts, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SubscriptionID, entry.EventType, string(entry.Payload), entry.StatusCode, boolToInt(entry.Success), entry.Error, entry.Attempts, entry.DurationMs, entry.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) ListDeliveryLogs(ctx context.Context, subscriptionID string, limit, offset int) ([]models.DeliveryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subscription_id, event_type, payload, status_code, success, error, attempts, duration_ms, created_at
		 FROM delivery_logs WHERE subscription_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		subscriptionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DeliveryLog
	for rows.Next() {
		var e models.DeliveryLog
		var payload string
		var success int
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.EventType, &payload, &e.StatusCode, &success, &e.Error, &e.Attempts, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		e.Success = success == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_logs l JOIN subscriptions sub ON l.subscription_id = sub.id WHERE sub.user_id = ?`, userID).Scan(&stats.TotalDeliveries)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_logs l JOIN subscriptions sub ON l.subscription_id = sub.id WHERE sub.user_id = ? AND l.success = 1`, userID).Scan(&stats.SuccessCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_logs l JOIN subscriptions sub ON l.subscription_id = sub.id WHERE sub.user_id = ? AND l.success = 0`, userID).Scan(&stats.FailedCount)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE user_id = ?`, userID).Scan(&stats.TotalSubscriptions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND status = ?`, userID, models.SubscriptionActive).Scan(&stats.ActiveSubscriptions)

	if stats.TotalDeliveries > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalDeliveries) * 100
	}

	return stats, nil
}

// --- helpers ---

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
