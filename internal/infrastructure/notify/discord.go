package notify

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
)

// DiscordSender posts messages to a Discord channel webhook.
type DiscordSender struct {
	client webhook.Client
}

func NewDiscordSender(webhookURL string) (*DiscordSender, error) {
	client, err := webhook.NewWithURL(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("discord: create webhook client: %w", err)
	}
	return &DiscordSender{client: client}, nil
}

func (d *DiscordSender) Send(ctx context.Context, message string) error {
	if _, err := d.client.CreateContent(message, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string {
	return "discord"
}

func (d *DiscordSender) Close(ctx context.Context) {
	d.client.Close(ctx)
}
