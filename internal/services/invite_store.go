package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

const pqUniqueViolation = "23505"

// PostgresInviteStore persists invites. Expiry is enforced here: pending invites past
// expires_at read back as expired and can no longer transition.
type PostgresInviteStore struct {
	db *sql.DB
}

func NewPostgresInviteStore(db *sql.DB) *PostgresInviteStore {
	return &PostgresInviteStore{db: db}
}

const inviteSelect = `
	SELECT i.id, i.public_id, i.kind,
		CASE WHEN i.status = 'pending' AND i.expires_at < NOW() THEN 'expired' ELSE i.status END,
		i.created_at, i.expires_at,
		inviter.id, inviter.public_id, inviter.name, COALESCE(inviter.avatar_url, ''),
		invitee.id, invitee.public_id, invitee.name, COALESCE(invitee.avatar_url, ''),
		c.public_id
	FROM chat_invites i
	JOIN users inviter ON inviter.id = i.inviter_id
	JOIN users invitee ON invitee.id = i.invitee_id
	LEFT JOIN chats c ON c.id = i.chat_id
`

// expireStale settles pending invites for the pair whose deadline has passed, so the
// pending-pair unique index only ever sees live invites.
func (s *PostgresInviteStore) expireStale(ctx context.Context, inviterID, inviteeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_invites SET status = 'expired', updated_at = NOW()
		WHERE inviter_id = $1 AND invitee_id = $2 AND status = 'pending' AND expires_at < NOW()
	`, inviterID, inviteeID)
	return err
}

func (s *PostgresInviteStore) HasPendingInvite(ctx context.Context, inviterID, inviteeID int64, kind models.InviteKind, chatPublicID *string) (bool, error) {
	if err := s.expireStale(ctx, inviterID, inviteeID); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM chat_invites
			WHERE inviter_id = $1 AND invitee_id = $2 AND kind = $3 AND status = 'pending'
			  AND chat_id IS NOT DISTINCT FROM (SELECT id FROM chats WHERE public_id = $4::uuid)
		)
	`, inviterID, inviteeID, string(kind), chatPublicID).Scan(&exists)
	return exists, err
}

func (s *PostgresInviteStore) CreateInvite(ctx context.Context, inv *models.ChatInvite) (*models.ChatInvite, error) {
	if err := s.expireStale(ctx, inv.Inviter.ID, inv.Invitee.ID); err != nil {
		return nil, err
	}
	var publicID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_invites (kind, status, inviter_id, invitee_id, chat_id, created_at, expires_at)
		VALUES ($1, 'pending', $2, $3, (SELECT id FROM chats WHERE public_id = $4::uuid), $5, $6)
		RETURNING public_id
	`, string(inv.Kind), inv.Inviter.ID, inv.Invitee.ID, inv.ChatPublicID, inv.CreatedAt, inv.ExpiresAt).Scan(&publicID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, models.ErrDuplicatePendingInvite
		}
		return nil, err
	}
	return s.GetInvite(ctx, publicID)
}

func (s *PostgresInviteStore) GetInvite(ctx context.Context, publicID string) (*models.ChatInvite, error) {
	if !validPublicID(publicID) {
		return nil, models.ErrInviteNotFound
	}
	var (
		inv    models.ChatInvite
		chatID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, inviteSelect+` WHERE i.public_id = $1`, publicID).Scan(
		&inv.ID, &inv.PublicID, &inv.Kind, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt,
		&inv.Inviter.ID, &inv.Inviter.PublicID, &inv.Inviter.Name, &inv.Inviter.Avatar,
		&inv.Invitee.ID, &inv.Invitee.PublicID, &inv.Invitee.Name, &inv.Invitee.Avatar,
		&chatID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	if chatID.Valid {
		inv.ChatPublicID = &chatID.String
	}
	return &inv, nil
}

// TransitionInvite is a compare-and-set from pending; concurrent accept and decline
// cannot both win.
func (s *PostgresInviteStore) TransitionInvite(ctx context.Context, publicID string, to models.InviteStatus) (*models.ChatInvite, error) {
	if !validPublicID(publicID) {
		return nil, models.ErrInviteNotFound
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_invites SET status = $2, updated_at = NOW()
		WHERE public_id = $1 AND status = 'pending' AND expires_at >= NOW()
	`, publicID, string(to))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetInvite(ctx, publicID); err != nil {
			return nil, err
		}
		return nil, models.ErrInviteNotPending
	}
	return s.GetInvite(ctx, publicID)
}
