package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/theBullfish/replier-web/pkg/pg"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sealer encrypts credential fields at rest. *secrets.Cipher satisfies it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// PgStore keeps the document as a single jsonb row.
type PgStore struct {
	db     DB
	sealer Sealer
}

// PgStoreOption configures a PgStore.
type PgStoreOption func(*PgStore)

// WithSealer encrypts API keys and webhook secrets before they are stored.
func WithSealer(s Sealer) PgStoreOption {
	return func(p *PgStore) {
		p.sealer = s
	}
}

func NewPgStore(db DB, opts ...PgStoreOption) *PgStore {
	s := &PgStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	loadSettingsQuery = `SELECT general FROM settings WHERE id = 1`
	saveSettingsQuery = `
INSERT INTO settings (id, general, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET general = EXCLUDED.general, updated_at = now()`
)

func (s *PgStore) Load(ctx context.Context) (Settings, error) {
	var doc Settings
	if err := s.db.QueryRow(ctx, loadSettingsQuery).Scan(&doc); err != nil {
		if pg.IsNotFoundError(err) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, errors.Join(ErrFailedToLoad, err)
	}
	if err := s.transform(&doc, s.open); err != nil {
		return Settings{}, errors.Join(ErrFailedToLoad, err)
	}
	return doc, nil
}

func (s *PgStore) Save(ctx context.Context, doc Settings) error {
	doc = doc.clone()
	if err := s.transform(&doc, s.seal); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	if _, err := s.db.Exec(ctx, saveSettingsQuery, doc); err != nil {
		return errors.Join(ErrFailedToSave, err)
	}
	return nil
}

func (s *PgStore) seal(v string) (string, error) { return s.sealer.Seal(v) }
func (s *PgStore) open(v string) (string, error) { return s.sealer.Open(v) }

func (s *PgStore) transform(doc *Settings, fn func(string) (string, error)) error {
	if s.sealer == nil {
		return nil
	}
	for _, field := range []*string{&doc.Payment.APIKey, &doc.Payment.ClientSecret, &doc.Webhook.Secret} {
		v, err := fn(*field)
		if err != nil {
			return err
		}
		*field = v
	}
	return nil
}
