// Package messaging delivers push messages through Firebase Cloud Messaging.
package messaging

import (
	"context"
	"fmt"

	fcm "firebase.google.com/go/v4/messaging"
	"github.com/anonto42/order-notify/backend/internal/models"
)

// Client is the part of *messaging.Client the sender needs.
type Client interface {
	Send(ctx context.Context, message *fcm.Message) (string, error)
	SendDryRun(ctx context.Context, message *fcm.Message) (string, error)
}

// FCMSender sends push messages to FCM topics.
type FCMSender struct {
	client Client
	dryRun bool
}

// NewFCMSender creates a sender on top of an FCM client. In dry-run mode messages are
// validated by FCM but never delivered.
func NewFCMSender(client Client, dryRun bool) *FCMSender {
	return &FCMSender{client: client, dryRun: dryRun}
}

// Send submits msg to FCM and returns the message ID assigned by FCM.
func (s *FCMSender) Send(ctx context.Context, msg *models.PushMessage) (string, error) {
	if msg.Topic == "" {
		return "", fmt.Errorf("push message has no topic")
	}

	message := toFCMMessage(msg)
	if s.dryRun {
		return s.client.SendDryRun(ctx, message)
	}
	return s.client.Send(ctx, message)
}

func toFCMMessage(msg *models.PushMessage) *fcm.Message {
	return &fcm.Message{
		Notification: &fcm.Notification{
			Title: msg.Notification.Title,
			Body:  msg.Notification.Body,
		},
		Data:  msg.Data,
		Topic: msg.Topic,
	}
}
