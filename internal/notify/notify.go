package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/pkg/errors"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Sink delivers one user-facing message over a single channel.
// recipient is an email address or a phone number depending on the channel.
type Sink interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, recipient, subject, body string) error

func (f SinkFunc) Send(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// Noop drops messages. Used when a channel is not configured.
type Noop struct{}

func (Noop) Send(context.Context, string, string, string) error { return nil }

// Message is a rendered notification for one channel.
type Message struct {
	Subject string
	Body    string
}

func ShipmentUpdateSubject(containerID string) string {
	return fmt.Sprintf("Shipment Update: %s", containerID)
}

func StatusChangeText(oldStatus, newStatus string) string {
	return fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus)
}

// ShipmentUpdateEmail renders the status-change email.
func ShipmentUpdateEmail(containerID, newStatus string) Message {
	body := fmt.Sprintf(`<html>
  <body>
    <h2>Shipment Status Update</h2>
    <p>Your shipment <strong>%s</strong> has a new status: <strong>%s</strong>.</p>
    <p>Login to your dashboard to see more details.</p>
  </body>
</html>`, html.EscapeString(containerID), html.EscapeString(newStatus))
	return Message{Subject: ShipmentUpdateSubject(containerID), Body: body}
}

// ShipmentUpdateSMS renders the status-change text message. SMS has no subject.
func ShipmentUpdateSMS(containerID, newStatus string) Message {
	return Message{Body: fmt.Sprintf("Dekks: shipment %s is now %s", containerID, newStatus)}
}

type notificationIDKey struct{}

// WithNotificationID attaches the id of the committed notification row that is being delivered.
func WithNotificationID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, notificationIDKey{}, id)
}

func NotificationIDFrom(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(notificationIDKey{}).(uint64)
	return id, ok && id != 0
}

// Deliver sends m through s, wrapping the error with the channel name.
func Deliver(ctx context.Context, s Sink, channel, recipient string, m Message) error {
	if s == nil {
		return nil
	}
	if err := s.Send(ctx, recipient, m.Subject, m.Body); err != nil {
		return errors.Wrapf(err, "send %s", channel)
	}
	return nil
}
