package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

func validPublicID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// PostgresChatStore keeps chats and participants in PostgreSQL. It also serves as
// the membership Authorizer.
type PostgresChatStore struct {
	db *sql.DB
}

func NewPostgresChatStore(db *sql.DB) *PostgresChatStore {
	return &PostgresChatStore{db: db}
}

func (s *PostgresChatStore) GetChat(ctx context.Context, chatPublicID string) (*models.Chat, error) {
	if !validPublicID(chatPublicID) {
		return nil, models.ErrChatNotFound
	}

	var (
		c       models.Chat
		name    sql.NullString
		last    []byte
		deleted sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, kind, name, last_message, marked_for_deletion_at, created_at
		FROM chats WHERE public_id = $1
	`, chatPublicID).Scan(&c.ID, &c.PublicID, &c.Kind, &name, &last, &deleted, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}

	if name.Valid {
		c.Name = &name.String
	}
	if deleted.Valid {
		c.MarkedForDeletionAt = &deleted.Time
	}
	if len(last) > 0 {
		var summary models.MessageSummary
		if err := json.Unmarshal(last, &summary); err == nil {
			c.LastMessage = &summary
		}
	}

	c.Participants, err = s.participants(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresChatStore) participants(ctx context.Context, chatID int64) ([]models.ChatParticipant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.public_id, u.name, COALESCE(u.avatar_url, ''), cp.role
		FROM chat_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.chat_id = $1
		ORDER BY cp.joined_at ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatParticipant
	for rows.Next() {
		var p models.ChatParticipant
		if err := rows.Scan(&p.User.ID, &p.User.PublicID, &p.User.Name, &p.User.Avatar, &p.Role); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresChatStore) FindOrCreateDirectChat(ctx context.Context, a, b models.User) (*models.Chat, error) {
	lo, hi := a.ID, b.ID
	if lo > hi {
		lo, hi = hi, lo
	}
	directKey := fmt.Sprintf("%d:%d", lo, hi)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var chatID int64
	var publicID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chats (kind, direct_key)
		VALUES ('direct', $1)
		ON CONFLICT (direct_key) DO UPDATE SET marked_for_deletion_at = NULL
		RETURNING id, public_id
	`, directKey).Scan(&chatID, &publicID)
	if err != nil {
		return nil, err
	}

	for _, u := range []models.User{a, b} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_participants (chat_id, user_id, role)
			VALUES ($1, $2, 'member')
			ON CONFLICT (chat_id, user_id) DO NOTHING
		`, chatID, u.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetChat(ctx, publicID)
}

func (s *PostgresChatStore) AddParticipant(ctx context.Context, chatPublicID string, user models.User, role models.ParticipantRole) (*models.Chat, error) {
	if !validPublicID(chatPublicID) {
		return nil, models.ErrChatNotFound
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_participants (chat_id, user_id, role)
		SELECT c.id, $2, $3 FROM chats c
		WHERE c.public_id = $1 AND c.marked_for_deletion_at IS NULL
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, chatPublicID, user.ID, string(role))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either already a member or the chat is gone; GetChat tells them apart.
		chat, err := s.GetChat(ctx, chatPublicID)
		if err != nil {
			return nil, err
		}
		if chat.Deleted() {
			return nil, models.ErrChatNotFound
		}
		return chat, nil
	}
	return s.GetChat(ctx, chatPublicID)
}

func (s *PostgresChatStore) RemoveParticipant(ctx context.Context, chatPublicID, userPublicID string) error {
	if !validPublicID(chatPublicID) || !validPublicID(userPublicID) {
		return models.ErrNotAParticipant
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_participants cp
		USING chats c, users u
		WHERE cp.chat_id = c.id AND cp.user_id = u.id
		  AND c.public_id = $1 AND u.public_id = $2
	`, chatPublicID, userPublicID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotAParticipant
	}
	return nil
}

func (s *PostgresChatStore) UpdateLastMessage(ctx context.Context, chatPublicID string, summary models.MessageSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE chats SET last_message = $2 WHERE public_id = $1`, chatPublicID, data)
	return err
}

// IsParticipant checks membership in chat_participants.
func (s *PostgresChatStore) IsParticipant(ctx context.Context, userPublicID, chatPublicID string) (bool, error) {
	if !validPublicID(userPublicID) || !validPublicID(chatPublicID) {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM chat_participants cp
			JOIN chats c ON c.id = cp.chat_id
			JOIN users u ON u.id = cp.user_id
			WHERE c.public_id = $1 AND u.public_id = $2 AND c.marked_for_deletion_at IS NULL
		)
	`, chatPublicID, userPublicID).Scan(&exists)
	return exists, err
}

// PostgresDirectory resolves users from the users table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) GetUser(ctx context.Context, publicID string) (*models.User, error) {
	if !validPublicID(publicID) {
		return nil, models.ErrUserNotFound
	}
	var u models.User
	err := d.db.QueryRowContext(ctx, `
		SELECT id, public_id, name, COALESCE(avatar_url, '') FROM users WHERE public_id = $1
	`, publicID).Scan(&u.ID, &u.PublicID, &u.Name, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *PostgresDirectory) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	out := make(map[int64]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, public_id, name, COALESCE(avatar_url, '') FROM users WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.PublicID, &u.Name, &u.Avatar); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}
