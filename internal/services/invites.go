package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// DefaultInviteTTL is how long an invite stays pending before the store expires it.
const DefaultInviteTTL = 7 * 24 * time.Hour

// InviteService is the only writer of invite status. Every transition ends in a
// targeted broadcast to user channels.
type InviteService struct {
	invites InviteStore
	chats   ChatStore
	users   UserDirectory
	authz   Authorizer
	pub     Publisher
	log     *zap.Logger
	ttl     time.Duration
}

func NewInviteService(d Deps) *InviteService {
	return &InviteService{
		invites: d.Invites,
		chats:   d.Chats,
		users:   d.Users,
		authz:   d.Authz,
		pub:     d.Publisher,
		log:     d.Log,
		ttl:     DefaultInviteTTL,
	}
}

type SendInviteCommand struct {
	InviterID string
	InviteeID string
	Kind      models.InviteKind
	// ChatID is required for group invites and ignored for direct ones.
	ChatID *string
}

// SendInvite creates a pending invite and notifies the invitee. A second invite for
// the same ordered pair while one is pending fails with
// models.ErrDuplicatePendingInvite and publishes nothing. Group invites can only
// come from a participant of the group.
func (s *InviteService) SendInvite(ctx context.Context, cmd SendInviteCommand) (*models.ChatInvite, error) {
	if cmd.InviterID == cmd.InviteeID {
		return nil, models.ErrSelfInvite
	}
	if cmd.Kind == "" {
		cmd.Kind = models.InviteKindDirect
	}

	inviter, err := s.users.GetUser(ctx, cmd.InviterID)
	if err != nil {
		return nil, fmt.Errorf("inviter: %w", err)
	}
	invitee, err := s.users.GetUser(ctx, cmd.InviteeID)
	if err != nil {
		return nil, fmt.Errorf("invitee: %w", err)
	}

	var chatID *string
	switch cmd.Kind {
	case models.InviteKindDirect:
	case models.InviteKindGroup:
		if cmd.ChatID == nil {
			return nil, models.ErrChatNotFound
		}
		chat, err := loadLiveChat(ctx, s.chats, *cmd.ChatID)
		if err != nil {
			return nil, err
		}
		if err := requireParticipant(ctx, s.authz, inviter.PublicID, chat.PublicID); err != nil {
			return nil, err
		}
		chatID = &chat.PublicID
	default:
		return nil, fmt.Errorf("unknown invite kind %q", cmd.Kind)
	}

	pending, err := s.invites.HasPendingInvite(ctx, inviter.ID, invitee.ID, cmd.Kind, chatID)
	if err != nil {
		return nil, fmt.Errorf("check pending invite: %w", err)
	}
	if pending {
		return nil, models.ErrDuplicatePendingInvite
	}

	now := time.Now().UTC()
	inv, err := s.invites.CreateInvite(ctx, &models.ChatInvite{
		Kind:         cmd.Kind,
		Status:       models.InviteStatusPending,
		Inviter:      *inviter,
		Invitee:      *invitee,
		ChatPublicID: chatID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicatePendingInvite) {
			return nil, err
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}

	s.notify(ctx, inv, InviteSent{Invite: NormalizeInvite(inv)}, inv.Invitee.PublicID)
	return inv, nil
}

// AcceptInvite must be called by the invitee. It marks the invite accepted, then
// resolves the chat (creating the direct chat on first acceptance) and notifies the
// inviter with the chat summary. The chat is only touched once the invite has
// left pending, so a concurrent decline leaves no membership behind.
func (s *InviteService) AcceptInvite(ctx context.Context, inviteID, actingUserID string) (*models.ChatInvite, *models.Chat, error) {
	inv, err := s.pendingInvite(ctx, inviteID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Invitee.PublicID != actingUserID {
		return nil, nil, models.ErrInviteForbidden
	}
	if inv.Kind == models.InviteKindGroup {
		if inv.ChatPublicID == nil {
			return nil, nil, models.ErrChatNotFound
		}
		if _, err := loadLiveChat(ctx, s.chats, *inv.ChatPublicID); err != nil {
			return nil, nil, err
		}
	}

	accepted, err := s.invites.TransitionInvite(ctx, inv.PublicID, models.InviteStatusAccepted)
	if err != nil {
		return nil, nil, err
	}

	var chat *models.Chat
	switch inv.Kind {
	case models.InviteKindGroup:
		chat, err = s.chats.AddParticipant(ctx, *inv.ChatPublicID, accepted.Invitee, models.RoleMember)
	default:
		chat, err = s.chats.FindOrCreateDirectChat(ctx, accepted.Inviter, accepted.Invitee)
	}
	if err != nil {
		s.log.Error("accepted invite could not resolve chat",
			zap.String("invite", accepted.PublicID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("resolve chat: %w", err)
	}

	s.notify(ctx, accepted, InviteAccepted{
		Invite: NormalizeInvite(accepted),
		Chat:   NormalizeChat(chat),
	}, accepted.Inviter.PublicID)
	return accepted, chat, nil
}

// DeclineInvite may be called by either party. Both user channels are notified so
// every device drops the invite from its pending list.
func (s *InviteService) DeclineInvite(ctx context.Context, inviteID, actingUserID string) (*models.ChatInvite, error) {
	inv, err := s.pendingInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if !inv.IsParty(actingUserID) {
		return nil, models.ErrInviteForbidden
	}

	declined, err := s.invites.TransitionInvite(ctx, inv.PublicID, models.InviteStatusDeclined)
	if err != nil {
		return nil, err
	}

	event := InviteDeclined{Invite: NormalizeInvite(declined)}
	s.notify(ctx, declined, event, declined.Inviter.PublicID, declined.Invitee.PublicID)
	return declined, nil
}

func (s *InviteService) pendingInvite(ctx context.Context, inviteID string) (*models.ChatInvite, error) {
	inv, err := s.invites.GetInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InviteStatusPending {
		return nil, models.ErrInviteNotPending
	}
	return inv, nil
}

// notify publishes to each user channel. The transition is already committed, so
// failures are logged and not returned.
func (s *InviteService) notify(ctx context.Context, inv *models.ChatInvite, event BroadcastEvent, userPublicIDs ...string) {
	for _, id := range userPublicIDs {
		channel := UserChannel(id)
		if err := s.pub.Publish(ctx, channel, event); err != nil {
			s.log.Warn("invite broadcast failed",
				zap.String("invite", inv.PublicID),
				zap.String("channel", channel),
				zap.String("event", string(event.Name())),
				zap.Error(err))
		}
	}
}
