package billing

import (
	"log/slog"
	"time"

	"github.com/theBullfish/replier-web/pkg/payment"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDeduplicator sets where processed webhook event ids are remembered
// and for how long. Without it every delivery is applied.
func WithDeduplicator(d Deduplicator, ttl time.Duration) ServiceOption {
	return func(s *service) {
		s.dedupe = d
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithNotifier sends checkout and cancellation emails.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		s.notifier = n
	}
}

// WithCertificateSource sets how wallet-provider signing certificates are
// fetched for webhook verification.
func WithCertificateSource(c payment.CertificateSource) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.certs = c
		}
	}
}
