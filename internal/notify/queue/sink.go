package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/BearBump/Dekks/internal/broker/messages"
	"github.com/BearBump/Dekks/internal/notify"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// Sink enqueues a NotificationTask instead of delivering the message itself.
// Delivery happens in the dispatcher, which consumes the topic.
type Sink struct {
	pub     Publisher
	topic   string
	channel string
	now     func() time.Time
}

func NewSink(pub Publisher, topic, channel string) *Sink {
	return &Sink{pub: pub, topic: topic, channel: channel, now: time.Now}
}

// Send derives EventID from the notification id carried by ctx, so enqueueing the same
// committed notification twice yields one delivery. Without an id every call is a new event.
func (s *Sink) Send(ctx context.Context, recipient, subject, body string) error {
	task := messages.NotificationTask{
		EventID:    uuid.NewString(),
		Channel:    s.channel,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		EnqueuedAt: s.now().UTC(),
	}
	if id, ok := notify.NotificationIDFrom(ctx); ok {
		task.NotificationID = id
		task.EventID = "notification:" + strconv.FormatUint(id, 10) + ":" + s.channel
	}
	// ключ по получателю: задачи одному адресату идут в одну партицию по порядку
	if err := s.pub.PublishJSON(ctx, s.topic, recipient, task); err != nil {
		return errors.Wrap(err, "enqueue notification task")
	}
	return nil
}
