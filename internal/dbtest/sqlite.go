// Package dbtest opens throwaway sqlite databases carrying the escrow schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Decimal columns are TEXT so amounts round-trip exactly instead of through
// sqlite's REAL affinity. Their CHECKs cast to REAL so the sign tests compare
// numbers, not strings. Constraints mirror pkg/migrate/migrations.
var schema = []string{
	`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  avatar_url TEXT,
  role TEXT NOT NULL DEFAULT 'user',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE events (
  id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  title TEXT NOT NULL,
  prize TEXT,
  verified INTEGER NOT NULL DEFAULT 0,
  winner_id TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  end_date DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE event_participants (
  event_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  joined_at DATETIME,
  PRIMARY KEY (event_id, user_id)
);`,
	`CREATE TABLE wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance TEXT NOT NULL,
  locked_balance TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (CAST(balance AS REAL) >= 0),
  CHECK (CAST(locked_balance AS REAL) >= 0)
);`,
	`CREATE TABLE transactions (
  id TEXT PRIMARY KEY,
  amount TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  description TEXT NOT NULL,
  user_id TEXT NOT NULL,
  sender_wallet_id TEXT NOT NULL,
  receiver_wallet_id TEXT,
  event_id TEXT NOT NULL,
  created_at DATETIME,
  confirmed_at DATETIME,
  CHECK (CAST(amount AS REAL) > 0),
  CHECK (type <> 'PRIZE_DISTRIBUTION' OR receiver_wallet_id IS NOT NULL)
);`,
	`CREATE UNIQUE INDEX transactions_one_distribution_per_event_idx
  ON transactions (event_id) WHERE type = 'PRIZE_DISTRIBUTION';`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  request_id TEXT,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  request_id TEXT,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a private in-memory database with every escrow table created.
// The pool is pinned to one connection, so concurrent transactions queue
// behind each other much like row locks serialize them on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
