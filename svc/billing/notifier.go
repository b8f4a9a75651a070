package billing

import (
	"context"
	"fmt"

	"github.com/theBullfish/replier-web/pkg/email"
	"github.com/theBullfish/replier-web/pkg/logger"
)

// Notification is a billing email about one record.
type Notification struct {
	Template string
	To       string
	Name     string
	Brand    string
	SiteURL  string
	Record   Record
	Product  Product
}

// Notifier delivers billing notifications. Delivery failures are logged by
// the service and never fail the billing operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

const (
	notifyCheckoutCompleted    = email.TemplateCheckoutCompleted
	notifySubscriptionCanceled = email.TemplateSubscriptionCanceled
)

// EmailNotifier renders the embedded email templates and sends them.
type EmailNotifier struct {
	sender email.EmailSender
}

func NewEmailNotifier(sender email.EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) Notify(ctx context.Context, msg Notification) error {
	subject := fmt.Sprintf("%s: payment received", msg.Brand)
	if msg.Template == notifySubscriptionCanceled {
		subject = fmt.Sprintf("%s: subscription canceled", msg.Brand)
	}

	body, err := email.Render(msg.Template, email.TemplateData{
		Subject:     subject,
		Brand:       msg.Brand,
		SiteURL:     msg.SiteURL,
		Name:        msg.Name,
		ProductName: msg.Product.Name,
		Amount:      msg.Record.Amount.StringFixed(2),
		Currency:    msg.Record.Currency,
		Interval:    msg.Record.Interval,
	})
	if err != nil {
		return err
	}

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   msg.To,
		Subject:  subject,
		BodyHTML: body,
		Tag:      msg.Template,
	})
}

func (s *service) notify(ctx context.Context, template string, rec *Record, to, name string) {
	if s.notifier == nil || to == "" {
		return
	}
	log := s.logger.With(logger.Component("billing"), logger.BillingID(rec.ID), logger.Event(template))

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		log.WarnContext(ctx, "skipping billing notification", logger.Error(err))
		return
	}
	product, err := s.store.GetProduct(ctx, rec.ProductID)
	if err != nil {
		log.WarnContext(ctx, "skipping billing notification", logger.Error(err))
		return
	}

	if err := s.notifier.Notify(ctx, Notification{
		Template: template,
		To:       to,
		Name:     name,
		Brand:    cfg.Site.Name,
		SiteURL:  cfg.SiteURL(),
		Record:   *rec,
		Product:  *product,
	}); err != nil {
		log.WarnContext(ctx, "billing notification failed", logger.Error(err))
	}
}
