package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// commitTimeout bounds the commit of a message that was already handled when shutdown began.
const commitTimeout = 5 * time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads notification tasks for one consumer group with explicit commits.
type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		// задачи, поставленные до первого запуска диспетчера, тоже должны уйти
		StartOffset: kafka.FirstOffset,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands every message to handler and commits it only after handler returned nil,
// so a crash between fetch and commit redelivers the message (at-least-once).
// It returns ctx.Err() once ctx is done; a message handled before that is still committed.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			// Важно: commit делаем только при успехе, иначе потеряем сообщение.
			slog.Warn("message left uncommitted",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err.Error())
			return err
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		err = c.r.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			return errors.Wrapf(err, "commit message %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
