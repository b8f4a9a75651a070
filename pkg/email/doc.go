// Package email sends transactional mail.
//
// NewPostmarkClient delivers through Postmark. NewDevSender writes each
// message to a directory as an HTML file plus a JSON metadata file, which is
// what local development uses when no Postmark token is configured. New
// picks between them from Config.
//
// Message bodies are rendered from the embedded html/template files by
// Render.
package email
