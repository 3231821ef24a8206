package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// ReceiptService records read watermarks and tells the other participants.
type ReceiptService struct {
	chats    ChatStore
	messages MessageStore
	users    UserDirectory
	authz    Authorizer
	pub      Publisher
	log      *zap.Logger
}

func NewReceiptService(d Deps) *ReceiptService {
	return &ReceiptService{
		chats:    d.Chats,
		messages: d.Messages,
		users:    d.Users,
		authz:    d.Authz,
		pub:      d.Publisher,
		log:      d.Log,
	}
}

// MarkRead persists the reader's watermark and publishes MessageRead to every other
// participant's user channel. The reader's own channel never receives it. A
// message at or behind the current watermark changes nothing and is not broadcast.
func (s *ReceiptService) MarkRead(ctx context.Context, chatID, readerID, lastReadMessageID string) error {
	chat, err := loadLiveChat(ctx, s.chats, chatID)
	if err != nil {
		return err
	}
	reader, err := s.users.GetUser(ctx, readerID)
	if err != nil {
		return err
	}
	if err := requireParticipant(ctx, s.authz, reader.PublicID, chat.PublicID); err != nil {
		return err
	}

	msg, err := s.messages.GetMessage(ctx, lastReadMessageID)
	if err != nil {
		return err
	}
	if msg.ChatID != chat.ID {
		return models.ErrMessageNotFound
	}

	moved, err := s.messages.UpdateReadWatermark(ctx, chat.ID, reader.ID, msg)
	if err != nil {
		return fmt.Errorf("update read watermark: %w", err)
	}
	if !moved {
		return nil
	}

	event := MessageRead{
		ChatID:            chat.PublicID,
		LastReadMessageID: msg.PublicID,
		ReaderPublicID:    reader.PublicID,
	}
	var errs []error
	for _, p := range chat.Participants {
		if p.User.PublicID == reader.PublicID {
			continue
		}
		if err := s.pub.Publish(ctx, UserChannel(p.User.PublicID), event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Warn("read receipt broadcast failed",
			zap.String("chat", chat.PublicID),
			zap.String("user", reader.PublicID),
			zap.Error(err))
		return err
	}
	return nil
}
