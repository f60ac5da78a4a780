package push

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher puts events on a topic every gateway node reads.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("failed to publish push events", "count", len(msgs), "err", err)
			}
		},
	}}
}

func (p *KafkaPublisher) Push(ctx context.Context, userIDs []string, ev model.Event) error {
	if len(userIDs) == 0 {
		return nil
	}
	raw, err := encodeEnvelope(userIDs, ev)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return p.w.WriteMessages(ctx, kafka.Message{Value: raw})
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// KafkaFanout reads the push topic and delivers to handles on this node.
// Every node joins its own consumer group so each one sees every event.
type KafkaFanout struct {
	r     *kafka.Reader
	local *Direct
}

func NewKafkaFanout(brokers []string, topic string, local *Direct) *KafkaFanout {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "gateway-fanout-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &KafkaFanout{r: r, local: local}
}

// Run blocks until ctx is done or the reader fails.
func (f *KafkaFanout) Run(ctx context.Context) error {
	defer f.r.Close()
	log.Info("kafka fanout started", "topic", f.r.Config().Topic)
	for {
		m, err := f.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read push topic")
		}
		dispatch(ctx, f.local, m.Value)
	}
}
