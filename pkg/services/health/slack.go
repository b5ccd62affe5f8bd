/*
2021 © Postgres.ai
*/

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

// SlackAlerter posts alerts to a Slack incoming webhook.
type SlackAlerter struct {
	webhookURL string
}

// NewSlackAlerter creates a new Slack alerter.
func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL}
}

// Alert posts the failed status.
func (a *SlackAlerter) Alert(ctx context.Context, status Status) error {
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf(":red_circle: Database health check failed at %s: %s",
			status.CheckedAt.Format(time.RFC3339), status.Detail),
	}

	if err := slack.PostWebhookContext(ctx, a.webhookURL, msg); err != nil {
		return errors.Wrap(err, "failed to post webhook")
	}

	return nil
}
