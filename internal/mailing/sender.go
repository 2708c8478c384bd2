// Package mailing implements campaign delivery. There is no real transport:
// delivery is simulated with a configurable delay, which keeps the Sending
// window observable without an external mail provider. Merge fields in the
// campaign body are rendered per recipient with Liquid.
package mailing

import (
	"context"
	"time"

	"github.com/osteele/liquid"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/pkg/logger"
)

// DefaultSendDelay approximates the latency of a real send batch.
const DefaultSendDelay = 2 * time.Second

// SimulatedSender renders and "delivers" a campaign to its recipients.
type SimulatedSender struct {
	engine *liquid.Engine
	delay  time.Duration
}

// NewSimulatedSender creates a sender with the given simulated latency.
// A non-positive delay disables the wait (used in tests).
func NewSimulatedSender(delay time.Duration) *SimulatedSender {
	return &SimulatedSender{
		engine: liquid.NewEngine(),
		delay:  delay,
	}
}

// Deliver renders the campaign body for each recipient and simulates the
// send. The delay is applied once for the batch, not per recipient.
func (s *SimulatedSender) Deliver(ctx context.Context, c *domain.Campaign, recipients []domain.Subscriber) error {
	tpl, err := s.engine.ParseString(c.Body)
	if err != nil {
		// Campaign bodies are free-form HTML; a body that doesn't parse as
		// a template is delivered verbatim.
		logger.Warn("campaign body is not a valid template, sending raw",
			"campaign_id", c.ID, "error", err.Error())
		tpl = nil
	}

	for _, sub := range recipients {
		body := c.Body
		if tpl != nil {
			rendered, err := tpl.RenderString(map[string]interface{}{
				"name":        sub.Name,
				"email":       sub.Email,
				"external_id": sub.ExternalID,
			})
			if err == nil {
				body = rendered
			} else {
				logger.Warn("merge field render failed",
					"campaign_id", c.ID, "subscriber", sub.Email, "error", err.Error())
			}
		}
		logger.Debug("delivered campaign email",
			"campaign_id", c.ID, "subscriber", sub.Email, "bytes", len(body))
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Info("campaign delivery complete",
		"campaign_id", c.ID, "recipients", len(recipients))
	return nil
}

// Render resolves merge fields in a body for a single subscriber.
func (s *SimulatedSender) Render(body string, sub domain.Subscriber) (string, error) {
	out, err := s.engine.ParseAndRenderString(body, map[string]interface{}{
		"name":        sub.Name,
		"email":       sub.Email,
		"external_id": sub.ExternalID,
	})
	if err != nil {
		return body, err
	}
	return out, nil
}
