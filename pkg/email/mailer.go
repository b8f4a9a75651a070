package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/theBullfish/replier-web/pkg/validator"
)

type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

func (p SendEmailParams) Validate() error {
	if err := validator.Apply(
		validator.ValidEmail("send_to", p.SendTo),
		validator.Required("subject", p.Subject),
		validator.Required("body_html", p.BodyHTML),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// New returns the Postmark sender when a server token is configured and the
// development file sender otherwise.
func New(cfg Config) (EmailSender, error) {
	if strings.TrimSpace(cfg.PostmarkServerToken) == "" {
		return NewDevSender(cfg.DevDir), nil
	}
	return NewPostmarkClient(cfg)
}
