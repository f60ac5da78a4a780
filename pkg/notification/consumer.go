package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/apperr"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const consumerGroup = "notifier-group"

// Consumer turns domain events read from Kafka into notifications.
type Consumer struct {
	reader  *kafka.Reader
	service *Service
}

func NewConsumer(brokers []string, topic string, service *Service) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  consumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, service: service}
}

// Consume runs until ctx is cancelled. Read errors are retried after a
// pause; events that fail validation are logged and skipped.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to read domain event, retrying", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if err := c.Handle(ctx, m.Value); err != nil {
			log.Warn("dropping domain event", "offset", m.Offset, "err", err)
		}
	}
}

// Handle decodes one domain event and creates its notification.
func (c *Consumer) Handle(ctx context.Context, raw []byte) error {
	var ev model.DomainEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return errors.Wrap(err, "decode domain event")
	}
	n, err := c.service.CreateFromEvent(ctx, ev)
	if err != nil {
		if apperr.Is(err, apperr.KindInternal) {
			log.Error("failed to store notification", "recipient", ev.RecipientID, "err", err)
		}
		return err
	}
	log.Info("notification created", "id", n.ID, "recipient", n.RecipientID, "type", n.Type)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Publisher emits domain events. Producers elsewhere on the platform use
// the same wire shape; the CLI tools use this one.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

func (p *Publisher) Publish(ctx context.Context, ev model.DomainEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.RecipientID), Value: raw})
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
