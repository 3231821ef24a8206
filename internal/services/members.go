package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// MemberService handles participant removal.
type MemberService struct {
	chats ChatStore
	users UserDirectory
	pub   Publisher
	log   *zap.Logger
}

func NewMemberService(d Deps) *MemberService {
	return &MemberService{chats: d.Chats, users: d.Users, pub: d.Publisher, log: d.Log}
}

// KickMember removes userID from the chat and publishes ChatMemberKicked to the chat
// channel, so the kicked user's open sessions see it before losing access. The
// actor must be an owner or admin; anyone may remove themselves.
func (s *MemberService) KickMember(ctx context.Context, chatID, actorID, userID string) error {
	chat, err := loadLiveChat(ctx, s.chats, chatID)
	if err != nil {
		return err
	}
	actor, ok := chat.Participant(actorID)
	if !ok {
		return models.ErrNotAParticipant
	}
	if actorID != userID && actor.Role != models.RoleOwner && actor.Role != models.RoleAdmin {
		return models.ErrInsufficientRole
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := chat.Participant(user.PublicID); !ok {
		return models.ErrNotAParticipant
	}
	channel, err := ChannelForChat(chat)
	if err != nil {
		return err
	}

	if err := s.chats.RemoveParticipant(ctx, chat.PublicID, user.PublicID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}

	event := ChatMemberKicked{
		ChatPublicID: chat.PublicID,
		User:         KickedUser{PublicID: user.PublicID, Name: user.Name},
	}
	if err := s.pub.Publish(ctx, channel, event); err != nil {
		s.log.Warn("kick broadcast failed", zap.String("chat", chat.PublicID), zap.Error(err))
		return err
	}
	return nil
}
