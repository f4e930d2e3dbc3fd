package notification

import (
	"context"
	"fmt"

	directorydomain "github.com/skolara/skolara/internal/directory/domain"
	"github.com/skolara/skolara/internal/providers/email"
	"github.com/skolara/skolara/internal/providers/push"
	"github.com/skolara/skolara/internal/providers/sms"
	"github.com/skolara/skolara/internal/taskqueue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type TasksParams struct {
	fx.In

	Log       *zap.Logger
	Queue     *taskqueue.Queue
	Directory directorydomain.Service
	Email     email.Provider
	SMS       sms.Provider
	Push      push.Provider
}

// Tasks holds the queue handlers for the async delivery channels. Each
// handler resolves the recipient's contact details at execution time, so a
// user updating their email between enqueue and send gets the new address.
type Tasks struct {
	log       *zap.Logger
	directory directorydomain.Service
	email     email.Provider
	sms       sms.Provider
	push      push.Provider
}

func NewTasks(p TasksParams) *Tasks {
	return &Tasks{
		log:       p.Log.Named("notification.tasks"),
		directory: p.Directory,
		email:     p.Email,
		sms:       p.SMS,
		push:      p.Push,
	}
}

func RegisterTasks(q *taskqueue.Queue, t *Tasks) error {
	if err := q.Register(taskqueue.KindSendEmail, t.SendEmail); err != nil {
		return err
	}
	if err := q.Register(taskqueue.KindSendSMS, t.SendSMS); err != nil {
		return err
	}
	return q.Register(taskqueue.KindSendPush, t.SendPush)
}

func (t *Tasks) SendEmail(ctx context.Context, payload taskqueue.Payload) error {
	userID, ok := payloadInt64(payload, "user_id")
	if !ok {
		return fmt.Errorf("send_email: missing user_id")
	}

	contact, err := t.directory.Contact(ctx, userID)
	if err != nil {
		return fmt.Errorf("send_email: contact lookup for user %d: %w", userID, err)
	}
	if contact.Email == "" {
		t.log.Debug("user has no email address, skipping", zap.Int64("user_id", userID))
		return nil
	}

	subject := payloadString(payload, "title")
	body := payloadString(payload, "body")
	if body == "" {
		body = subject
	}
	return t.email.Send(ctx, []string{contact.Email}, subject, body)
}

func (t *Tasks) SendSMS(ctx context.Context, payload taskqueue.Payload) error {
	userID, ok := payloadInt64(payload, "user_id")
	if !ok {
		return fmt.Errorf("send_sms: missing user_id")
	}

	contact, err := t.directory.Contact(ctx, userID)
	if err != nil {
		return fmt.Errorf("send_sms: contact lookup for user %d: %w", userID, err)
	}
	if contact.Phone == "" {
		t.log.Debug("user has no phone number, skipping", zap.Int64("user_id", userID))
		return nil
	}

	return t.sms.Send(ctx, contact.Phone, payloadString(payload, "body"))
}

func (t *Tasks) SendPush(ctx context.Context, payload taskqueue.Payload) error {
	userID, ok := payloadInt64(payload, "user_id")
	if !ok {
		return fmt.Errorf("send_push: missing user_id")
	}

	contact, err := t.directory.Contact(ctx, userID)
	if err != nil {
		return fmt.Errorf("send_push: contact lookup for user %d: %w", userID, err)
	}
	if contact.PushToken == "" {
		t.log.Debug("user has no push token, skipping", zap.Int64("user_id", userID))
		return nil
	}

	msg := push.Message{
		Token: contact.PushToken,
		Title: payloadString(payload, "title"),
		Body:  payloadString(payload, "body"),
	}
	if id, ok := payloadInt64(payload, "notification_id"); ok {
		msg.Data = map[string]string{"notification_id": fmt.Sprintf("%d", id)}
	}
	return t.push.Send(ctx, msg)
}

func payloadInt64(payload taskqueue.Payload, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func payloadString(payload taskqueue.Payload, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
