package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// MessageCache is the recent-message cache used for initial history loads.
type MessageCache interface {
	Push(ctx context.Context, msg WireMessage)
	// Get returns the newest messages oldest-first; complete means nothing older exists.
	Get(ctx context.Context, chatPublicID string) (msgs []WireMessage, complete, ok bool)
	Warm(ctx context.Context, chatPublicID string, msgs []WireMessage, complete bool)
}

// Deps bundles the collaborators shared by the chat services.
type Deps struct {
	Chats     ChatStore
	Messages  MessageStore
	Invites   InviteStore
	Users     UserDirectory
	Authz     Authorizer
	Publisher Publisher
	Recent    MessageCache // optional
	Log       *zap.Logger
}

type SendCommand struct {
	ChatID      string
	AuthorID    string
	Content     string
	ReplyTo     *string
	Attachments []models.MessageAttachment
	TempID      string
}

type SendResult struct {
	MessagePublicID string
	Message         WireMessage
	// Duplicate is set when the temp id had already been stored; nothing was
	// broadcast again.
	Duplicate bool
	// Flagged is set when the content matched the screening vocabularies. The
	// message is delivered as usual and logged for review.
	Flagged bool
}

// MessageService drives a message from send through persistence to the
// Confirmed and Created broadcasts.
type MessageService struct {
	chats    ChatStore
	messages MessageStore
	users    UserDirectory
	authz    Authorizer
	recent   MessageCache
	pub      Publisher
	log      *zap.Logger
}

func NewMessageService(d Deps) *MessageService {
	return &MessageService{
		chats:    d.Chats,
		messages: d.Messages,
		users:    d.Users,
		authz:    d.Authz,
		recent:   d.Recent,
		pub:      d.Publisher,
		log:      d.Log,
	}
}

// Send persists a message and emits exactly one MessageConfirmed to the author's
// user channel and one MessageCreated to the chat channel. When the message is
// stored but a broadcast fails, the result is returned together with an error
// wrapping models.ErrTransportUnavailable.
func (s *MessageService) Send(ctx context.Context, cmd SendCommand) (*SendResult, error) {
	cmd.Content = strings.TrimSpace(cmd.Content)
	cmd.TempID = strings.TrimSpace(cmd.TempID)
	if cmd.TempID == "" || (cmd.Content == "" && len(cmd.Attachments) == 0) {
		return nil, models.ErrInvalidMessage
	}

	chat, err := loadLiveChat(ctx, s.chats, cmd.ChatID)
	if err != nil {
		return nil, err
	}
	author, err := s.users.GetUser(ctx, cmd.AuthorID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(ctx, s.authz, author.PublicID, chat.PublicID); err != nil {
		return nil, err
	}
	if cmd.ReplyTo != nil {
		parent, err := s.messages.GetMessage(ctx, *cmd.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply target: %w", err)
		}
		if parent.ChatID != chat.ID {
			return nil, fmt.Errorf("reply target: %w", models.ErrMessageNotFound)
		}
	}

	stored, err := s.messages.CreateMessage(ctx, &models.Message{
		ChatID:      chat.ID,
		AuthorID:    &author.ID,
		TempID:      cmd.TempID,
		Content:     cmd.Content,
		ReplyTo:     cmd.ReplyTo,
		Attachments: cmd.Attachments,
		CreatedAt:   time.Now().UTC(),
	})
	if errors.Is(err, models.ErrDuplicateMessage) {
		s.log.Info("duplicate send ignored",
			zap.String("chat", chat.PublicID),
			zap.String("user", author.PublicID),
			zap.String("temp_id", cmd.TempID))
		wire := NormalizeMessage(stored, chat, author)
		return &SendResult{MessagePublicID: stored.PublicID, Message: wire, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	wire := NormalizeMessage(stored, chat, author)
	result := &SendResult{MessagePublicID: stored.PublicID, Message: wire}

	if screen := ScreenContent(cmd.Content); screen.Flagged() {
		result.Flagged = true
		s.log.Warn("message flagged for review",
			zap.String("chat", chat.PublicID),
			zap.String("message", stored.PublicID),
			zap.String("user", author.PublicID),
			zap.Bool("threat", screen.Threat),
			zap.Bool("self_harm", screen.SelfHarm),
			zap.Strings("matches", screen.Matches))
	}

	if s.recent != nil {
		s.recent.Push(ctx, wire)
	}
	if err := s.chats.UpdateLastMessage(ctx, chat.PublicID, summarize(wire)); err != nil {
		s.log.Warn("update last message failed", zap.String("chat", chat.PublicID), zap.Error(err))
	}

	if err := s.broadcastSend(ctx, chat, author, wire, cmd.TempID); err != nil {
		return result, err
	}
	return result, nil
}

func (s *MessageService) broadcastSend(ctx context.Context, chat *models.Chat, author *models.User, wire WireMessage, tempID string) error {
	chatChannel, err := ChannelForChat(chat)
	if err != nil {
		return err
	}

	confirmErr := s.pub.Publish(ctx, UserChannel(author.PublicID), MessageConfirmed{Message: wire, TempID: tempID})
	createErr := s.pub.Publish(ctx, chatChannel, MessageCreated{Message: wire})

	if err := errors.Join(confirmErr, createErr); err != nil {
		s.log.Error("message broadcast failed",
			zap.String("chat", chat.PublicID),
			zap.String("message", wire.ID),
			zap.Error(err))
		return err
	}
	return nil
}

// History returns up to limit normalized messages older than before, oldest first.
// Initial loads are served from the recent cache when possible.
func (s *MessageService) History(ctx context.Context, chatID, callerID string, before *time.Time, limit int64) ([]WireMessage, bool, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	chat, err := loadLiveChat(ctx, s.chats, chatID)
	if err != nil {
		return nil, false, err
	}
	if err := requireParticipant(ctx, s.authz, callerID, chat.PublicID); err != nil {
		return nil, false, err
	}

	initial := before == nil && s.recent != nil
	if initial {
		if cached, complete, ok := s.recent.Get(ctx, chat.PublicID); ok && (complete || int64(len(cached)) >= limit) {
			return tailMessages(cached, limit), int64(len(cached)) > limit || !complete, nil
		}
	}

	// A cold initial load fetches at least a full recent list so the cache is
	// warmed with the newest messages rather than with this caller's page size.
	fetch := limit
	if initial && fetch < chatRecentMaxLen {
		fetch = chatRecentMaxLen
	}
	msgs, storeHasMore, err := s.messages.ListMessages(ctx, chat.ID, before, fetch)
	if err != nil {
		return nil, false, fmt.Errorf("load messages: %w", err)
	}

	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if m.AuthorID != nil {
			ids = append(ids, *m.AuthorID)
		}
	}
	authors, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, false, fmt.Errorf("load authors: %w", err)
	}

	out := make([]WireMessage, 0, len(msgs))
	for i := range msgs {
		var author *models.User
		if msgs[i].AuthorID != nil {
			if u, ok := authors[*msgs[i].AuthorID]; ok {
				author = &u
			}
		}
		out = append(out, NormalizeMessage(&msgs[i], chat, author))
	}

	if initial {
		s.recent.Warm(ctx, chat.PublicID, tailMessages(out, chatRecentMaxLen), !storeHasMore && len(out) <= chatRecentMaxLen)
	}
	return tailMessages(out, limit), storeHasMore || int64(len(out)) > limit, nil
}

// tailMessages returns the newest n of an oldest-first slice.
func tailMessages(msgs []WireMessage, n int64) []WireMessage {
	if int64(len(msgs)) > n {
		return msgs[int64(len(msgs))-n:]
	}
	return msgs
}

// loadLiveChat treats soft-deleted chats as gone.
func loadLiveChat(ctx context.Context, chats ChatStore, chatPublicID string) (*models.Chat, error) {
	chat, err := chats.GetChat(ctx, chatPublicID)
	if err != nil {
		return nil, err
	}
	if chat.Deleted() {
		return nil, models.ErrChatNotFound
	}
	return chat, nil
}

func requireParticipant(ctx context.Context, authz Authorizer, userPublicID, chatPublicID string) error {
	ok, err := authz.IsParticipant(ctx, userPublicID, chatPublicID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return models.ErrNotAParticipant
	}
	return nil
}
