package services

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher appends every broadcast to a Kafka topic. Messages are keyed by
// channel name so one channel always lands in one partition and keeps its order.
type KafkaPublisher struct {
	writer kafkaWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, channel string, event BroadcastEvent) error {
	data, err := EncodeEnvelope(channel, event)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(channel),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(event.Name())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka write %s: %v", models.ErrTransportUnavailable, channel, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
