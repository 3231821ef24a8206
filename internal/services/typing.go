package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// TypingService publishes ephemeral typing signals. Nothing is stored, acknowledged
// or retried; clients expire indicators on their own.
type TypingService struct {
	chats ChatStore
	users UserDirectory
	pub   Publisher
	log   *zap.Logger
}

func NewTypingService(d Deps) *TypingService {
	return &TypingService{chats: d.Chats, users: d.Users, pub: d.Publisher, log: d.Log}
}

// NotifyTyping publishes one TypingStarted to the chat channel. Lookup errors are
// returned; a dropped publish is not.
func (s *TypingService) NotifyTyping(ctx context.Context, chatID, userID string) error {
	chat, err := loadLiveChat(ctx, s.chats, chatID)
	if err != nil {
		return err
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

	if err := s.pub.Publish(ctx, channel, TypingStarted{UserPublicID: user.PublicID}); err != nil {
		s.log.Debug("typing signal dropped", zap.String("channel", channel), zap.Error(err))
	}
	return nil
}
