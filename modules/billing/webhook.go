package billing

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/logger"
	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/svc/billing"
)

// maxWebhookBody bounds provider payloads. Real deliveries are a few KB.
const maxWebhookBody = 1 << 20

type webhookError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type webhookAck struct {
	Received bool   `json:"received"`
	Warning  string `json:"warning,omitempty"`
}

// webhook verifies and reconciles one provider delivery. Providers only
// look at the status code: 400 means do not retry, 500 means retry.
func (m *Module) webhook(name payment.ProviderName) http.HandlerFunc {
	log := m.logger.With(logger.Component("webhook"), logger.Provider(string(name)))

	return handler.Wrap(func(ctx handler.Context, _ empty) handler.Response {
		start := time.Now()

		parser, err := m.billing.WebhookParser(ctx, name)
		if err != nil {
			log.WarnContext(ctx, "webhook rejected", logger.Error(err))
			if errors.Is(err, billing.ErrMissingWebhookCreds) {
				return handler.Raw(http.StatusBadRequest, webhookError{Error: "Webhook credentials are not configured"})
			}
			return handler.Raw(http.StatusInternalServerError, webhookError{Error: "Error processing webhook", Message: err.Error()})
		}

		payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBody+1))
		if err != nil || len(payload) > maxWebhookBody {
			return handler.Raw(http.StatusBadRequest, webhookError{Error: "Invalid webhook payload"})
		}

		event, err := parser.ParseWebhook(ctx, payload, ctx.Request().Header)
		if err != nil {
			log.WarnContext(ctx, "webhook verification failed", logger.Error(err))
			msg := "Webhook signature verification failed."
			if errors.Is(err, payment.ErrMissingSignatureHeaders) {
				msg = "Missing webhook signature headers"
			}
			return handler.Raw(http.StatusBadRequest, webhookError{Error: msg})
		}

		outcome, err := m.billing.Reconcile(ctx, event)
		if err != nil {
			return handler.Raw(http.StatusInternalServerError, webhookError{Error: "Error processing webhook", Message: err.Error()})
		}

		log.InfoContext(ctx, "webhook processed",
			logger.EventID(event.ID),
			logger.EventType(event.Type),
			logger.Event(string(outcome)),
			logger.Duration(time.Since(start)),
		)
		if outcome == billing.OutcomeUnknownRecord {
			return handler.Raw(http.StatusOK, webhookAck{Received: true, Warning: "Subscription not found in database"})
		}
		return handler.Raw(http.StatusOK, webhookAck{Received: true})
	}, handler.WithErrorHandler[handler.Context, empty](m.errorHandler))
}
