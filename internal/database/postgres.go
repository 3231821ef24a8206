package database

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL database
func ConnectPostgres(postgresURI string, log *zap.Logger) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	if err = PostgresDB.Ping(); err != nil {
		return err
	}
	log.Info("connected to PostgreSQL")

	if err = InitPostgresTables(PostgresDB); err != nil {
		return err
	}
	log.Info("PostgreSQL tables initialized")
	return nil
}

// Schema is the relational side of the chat engine: users, chats, membership and
// invites. Message bodies live in MongoDB.
var Schema = []string{
	// Users are owned by the account service; this engine only reads them.
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		public_id UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		name VARCHAR(255) NOT NULL,
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS chats (
		id BIGSERIAL PRIMARY KEY,
		public_id UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		kind VARCHAR(16) NOT NULL CHECK (kind IN ('direct', 'group', 'team')),
		name VARCHAR(255),
		direct_key VARCHAR(64) UNIQUE,
		last_message JSONB,
		marked_for_deletion_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role VARCHAR(16) NOT NULL DEFAULT 'member',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (chat_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS chat_invites (
		id BIGSERIAL PRIMARY KEY,
		public_id UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		kind VARCHAR(16) NOT NULL CHECK (kind IN ('direct', 'group')),
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		inviter_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		invitee_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		chat_id BIGINT REFERENCES chats(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// At most one pending invite per inviter, invitee, kind and chat.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_invites_pending_pair
		ON chat_invites(inviter_id, invitee_id, kind, COALESCE(chat_id, 0))
		WHERE status = 'pending'`,

	`CREATE INDEX IF NOT EXISTS idx_chat_participants_user_id ON chat_participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_invites_invitee_id ON chat_invites(invitee_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_marked_for_deletion ON chats(marked_for_deletion_at)`,

	// Invite expiry compares against NOW(); older deployments created these
	// columns without a time zone.
	`ALTER TABLE chat_invites
		ALTER COLUMN created_at TYPE TIMESTAMPTZ,
		ALTER COLUMN expires_at TYPE TIMESTAMPTZ,
		ALTER COLUMN updated_at TYPE TIMESTAMPTZ`,
}

// InitPostgresTables creates all necessary tables if they don't exist
func InitPostgresTables(db *sql.DB) error {
	for _, query := range Schema {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}
