package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

const (
	messagesCollection   = "chat_messages"
	watermarksCollection = "chat_read_watermarks"
)

// MongoMessageStore keeps message documents and read watermarks in MongoDB.
type MongoMessageStore struct {
	messages   *mongo.Collection
	watermarks *mongo.Collection
}

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{
		messages:   db.Collection(messagesCollection),
		watermarks: db.Collection(watermarksCollection),
	}
}

// EnsureIndexes configures indexes for the message collections.
// Called on startup from main after Mongo has connected.
func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	// History pages walk (chat_id, _id) newest first.
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_chat_id_desc"),
		},
		{
			Keys:    bson.D{{Key: "public_id", Value: 1}},
			Options: options.Index().SetName("idx_public_id").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "temp_id", Value: 1}},
			Options: options.Index().
				SetName("idx_author_temp_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"temp_id": bson.M{"$type": "string"}}),
		},
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return err
	}

	_, err := s.watermarks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetName("idx_chat_user").SetUnique(true),
	})
	return err
}

func (s *MongoMessageStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	m := *msg
	m.ID = primitive.NewObjectID()
	m.PublicID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) && m.TempID != "" && m.AuthorID != nil {
			existing, findErr := s.findByTempID(ctx, *m.AuthorID, m.TempID)
			if findErr != nil {
				return nil, findErr
			}
			return existing, models.ErrDuplicateMessage
		}
		return nil, err
	}
	return &m, nil
}

func (s *MongoMessageStore) findByTempID(ctx context.Context, authorID int64, tempID string) (*models.Message, error) {
	var m models.Message
	err := s.messages.FindOne(ctx, bson.M{"author_id": authorID, "temp_id": tempID}).Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoMessageStore) GetMessage(ctx context.Context, publicID string) (*models.Message, error) {
	var m models.Message
	err := s.messages.FindOne(ctx, bson.M{"public_id": publicID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns paginated chat history.
// Pagination is based on created_at + limit (newest-first scrolling).
func (s *MongoMessageStore) ListMessages(ctx context.Context, chatID int64, before *time.Time, limit int64) ([]models.Message, bool, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	filter := bson.M{"chat_id": chatID}
	if before != nil {
		filter["created_at"] = bson.M{"$lt": before.UTC()}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(limit + 1)

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, false, err
	}

	hasMore := int64(len(msgs)) > limit
	if hasMore {
		msgs = msgs[:len(msgs)-1]
	}

	// Reverse to oldest-first for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, hasMore, nil
}

// UpdateReadWatermark moves the reader's watermark to upTo and marks every earlier
// message in the chat as seen by them. Watermarks never move backwards; moved is
// false when upTo is not newer than the stored watermark.
func (s *MongoMessageStore) UpdateReadWatermark(ctx context.Context, chatID, readerID int64, upTo *models.Message) (bool, error) {
	now := time.Now().UTC()
	res, err := s.watermarks.UpdateOne(ctx,
		bson.M{
			"chat_id": chatID,
			"user_id": readerID,
			"$or": bson.A{
				bson.M{"last_read_oid": bson.M{"$exists": false}},
				bson.M{"last_read_oid": bson.M{"$lt": upTo.ID}},
			},
		},
		bson.M{"$set": bson.M{
			"last_read_message_id": upTo.PublicID,
			"last_read_oid":        upTo.ID,
			"updated_at":           now,
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// The upsert collided with a watermark at or past upTo.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 0 && res.UpsertedCount == 0 {
		return false, nil
	}

	_, err = s.messages.UpdateMany(ctx,
		bson.M{"chat_id": chatID, "_id": bson.M{"$lte": upTo.ID}, "seen_by": bson.M{"$ne": readerID}},
		bson.M{"$addToSet": bson.M{"seen_by": readerID}},
	)
	return true, err
}
