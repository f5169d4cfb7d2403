// Package email sends order notifications through Resend.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/resend/resend-go/v2"
)

var errNoRecipients = errors.New("email has no recipients")

type ResendNotifier struct {
	client *resend.Client
}

type Option func(*resend.Client) error

// WithBaseURL points the client at another Resend-compatible endpoint.
func WithBaseURL(raw string) Option {
	return func(c *resend.Client) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		c.BaseURL = u
		return nil
	}
}

func NewResendNotifier(apiKey string, opts ...Option) (*ResendNotifier, error) {
	c := resend.NewClient(apiKey)
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return &ResendNotifier{client: c}, nil
}

func (n *ResendNotifier) Send(ctx context.Context, e usecase.Email) error {
	if len(e.To) == 0 {
		return errNoRecipients
	}
	_, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
		Html:    e.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

var _ usecase.Notifier = (*ResendNotifier)(nil)
