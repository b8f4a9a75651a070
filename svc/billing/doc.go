// Package billing turns payment-provider calls into local billing records.
//
// The Service creates checkouts (free products are activated locally without
// a provider), completes provider callbacks into records, changes and cancels
// plans, and reconciles verified webhook events by provider id. A record is
// created at most once per provider id, and creating an entitled record
// cancels the user's entitled free-plan record in the same transaction.
//
// Admin operations cover the product catalog (with provider price
// management), webhook registration, a provider connection test and sales
// reporting.
//
// Two Store implementations are provided: PgStore on pgx and MemoryStore for
// tests and local development.
package billing
