// Package push delivers fired alarms to devices and operator channels.
package push

import (
	"context"
	"fmt"
	"os"
	"sync"

	"GoldPull/internal/domain/models"
	dservice "GoldPull/internal/domain/service"
	"GoldPull/pkg/logger"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM sends push notifications through Firebase Cloud Messaging. The SDK is
// initialised on the first send; without usable credentials every send is a
// no-op.
type FCM struct {
	credentialsFile string
	projectID       string
	logger          *logger.Logger

	once   sync.Once
	client *messaging.Client
}

var _ dservice.Notifier = (*FCM)(nil)

func NewFCM(credentialsFile, projectID string, l *logger.Logger) *FCM {
	return &FCM{credentialsFile: credentialsFile, projectID: projectID, logger: l.With("fcm")}
}

func (f *FCM) init(ctx context.Context) {
	if f.credentialsFile == "" {
		f.logger.Warn("push credentials not configured, notifications disabled")
		return
	}
	if _, err := os.Stat(f.credentialsFile); err != nil {
		f.logger.Warn("push credentials unreadable, notifications disabled", logger.String("file", f.credentialsFile), logger.Error(err))
		return
	}

	var cfg *firebase.Config
	if f.projectID != "" {
		cfg = &firebase.Config{ProjectID: f.projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(f.credentialsFile))
	if err != nil {
		f.logger.Error("firebase init failed, notifications disabled", logger.Error(err))
		return
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		f.logger.Error("firebase messaging init failed, notifications disabled", logger.Error(err))
		return
	}
	f.client = client
	f.logger.Info("push notifications enabled")
}

// Enabled initialises the SDK if needed and reports whether sends will go out.
func (f *FCM) Enabled(ctx context.Context) bool {
	f.once.Do(func() { f.init(ctx) })
	return f.client != nil
}

func (f *FCM) Send(ctx context.Context, n models.Notification) (*dservice.SendResult, error) {
	if n.Token == "" || !f.Enabled(ctx) {
		return nil, nil
	}
	id, err := f.client.Send(ctx, &messaging.Message{
		Token:        n.Token,
		Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
		Android:      &messaging.AndroidConfig{Priority: "high"},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fcm send: %w", err)
	}
	return &dservice.SendResult{MessageID: id}, nil
}

// Nop never sends anything.
type Nop struct{}

func (Nop) Send(context.Context, models.Notification) (*dservice.SendResult, error) { return nil, nil }
