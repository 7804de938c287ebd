package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates the support chat schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		// users is owned by the account service; created here so a fresh
		// database can serve admin-initiated threads.
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            email TEXT,
            name TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            user_id TEXT,
            email TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            unread_count SMALLINT NOT NULL DEFAULT 0 CHECK (unread_count IN (0, 1)),
            admin_initiated BOOLEAN NOT NULL DEFAULT FALSE,
            CHECK (user_id IS NOT NULL OR email IS NOT NULL)
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_user_id_key
            ON conversations (user_id) WHERE user_id IS NOT NULL;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_email_key
            ON conversations (email) WHERE user_id IS NULL;`,
		`CREATE INDEX IF NOT EXISTS conversations_last_message_at_idx
            ON conversations (last_message_at DESC);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            seq BIGSERIAL NOT NULL UNIQUE,
            conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
            sender_role TEXT NOT NULL CHECK (sender_role IN ('admin', 'user')),
            body TEXT NOT NULL CHECK (length(btrim(body)) > 0),
            user_id TEXT,
            email TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
            read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            is_broadcast BOOLEAN NOT NULL DEFAULT FALSE,
            broadcast_type TEXT,
            reply_to UUID REFERENCES messages(id) ON DELETE SET NULL
        );`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_order_idx
            ON messages (conversation_id, created_at, seq);`,
		`CREATE INDEX IF NOT EXISTS messages_user_id_idx ON messages (user_id);`,
		`CREATE INDEX IF NOT EXISTS messages_email_idx ON messages (email);`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	log.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
