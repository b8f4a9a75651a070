package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/theBullfish/replier-web/pkg/payment"
	"github.com/theBullfish/replier-web/pkg/pg"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	pg.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore implements Store on the billing and products tables.
type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

const recordColumns = `id, user_id, product_id, status, provider, provider_id, provider_transaction_id,
	customer_id, amount, currency, billing_interval, current_period_start, current_period_end,
	cancel_at_period_end, canceled_at, ended_at, metadata, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.UserID, &r.ProductID, &r.Status, &r.Provider, &r.ProviderID, &r.ProviderTransactionID,
		&r.CustomerID, &r.Amount, &r.Currency, &r.Interval, &r.CurrentPeriodStart, &r.CurrentPeriodEnd,
		&r.CancelAtPeriodEnd, &r.CanceledAt, &r.EndedAt, &r.Metadata, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PgStore) queryRecord(ctx context.Context, q pgxQuerier, sql string, args ...any) (*Record, error) {
	r, err := scanRecord(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Join(ErrFailedToLoadRecords, err)
	}
	return r, nil
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// errRecordConflict rolls back a CreateRecord transaction that lost an
// insert race.
var errRecordConflict = errors.New("billing record conflict")

func (s *PgStore) CreateRecord(ctx context.Context, r *Record) (*Record, error) {
	if existing, err := s.GetRecordByProviderID(ctx, r.ProviderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	var created *Record
	err := pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id FROM billing
			WHERE user_id = $1 AND provider = $2 AND status = $3
			FOR UPDATE`,
			r.UserID, payment.ProviderFree, payment.StatusActive,
		)
		if err != nil {
			return err
		}
		freeIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}

		if r.Entitled() && len(freeIDs) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE billing SET status = $2, ended_at = COALESCE(ended_at, now()), updated_at = now()
				WHERE id = ANY($1)`,
				freeIDs, payment.StatusCanceled,
			); err != nil {
				return err
			}
		}

		created, err = scanRecord(tx.QueryRow(ctx, `
			INSERT INTO billing (id, user_id, product_id, status, provider, provider_id, provider_transaction_id,
				customer_id, amount, currency, billing_interval, current_period_start, current_period_end,
				cancel_at_period_end, canceled_at, ended_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT (provider_id) DO NOTHING
			RETURNING `+recordColumns,
			id, r.UserID, r.ProductID, r.Status, r.Provider, r.ProviderID, r.ProviderTransactionID,
			r.CustomerID, r.Amount, payment.NormalizeCurrency(r.Currency), r.Interval, r.CurrentPeriodStart, r.CurrentPeriodEnd,
			r.CancelAtPeriodEnd, r.CanceledAt, r.EndedAt, metadata,
		))
		switch {
		case pg.IsNotFoundError(err), pg.IsDuplicateKeyError(err):
			return errRecordConflict
		case err != nil:
			return err
		}
		return nil
	})

	switch {
	case errors.Is(err, errRecordConflict):
		return s.conflictingRecord(ctx, r)
	case err != nil:
		return nil, errors.Join(ErrFailedToCreateRecord, err)
	}
	return created, nil
}

// conflictingRecord returns the row that won a concurrent insert: the same
// provider id, or for free records the user's entitled free record.
func (s *PgStore) conflictingRecord(ctx context.Context, r *Record) (*Record, error) {
	existing, err := s.GetRecordByProviderID(ctx, r.ProviderID)
	if err == nil || !errors.Is(err, ErrRecordNotFound) || r.Provider != payment.ProviderFree {
		return existing, err
	}
	return s.queryRecord(ctx, s.db, `
		SELECT `+recordColumns+` FROM billing
		WHERE user_id = $1 AND provider = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		r.UserID, payment.ProviderFree, payment.StatusActive,
	)
}

func (s *PgStore) GetRecordByProviderID(ctx context.Context, providerID string) (*Record, error) {
	return s.queryRecord(ctx, s.db,
		`SELECT `+recordColumns+` FROM billing WHERE provider_id = $1`, providerID)
}

func (s *PgStore) FindEntitledRecord(ctx context.Context, userID string, productID uuid.UUID) (*Record, error) {
	return s.queryRecord(ctx, s.db, `
		SELECT `+recordColumns+` FROM billing
		WHERE user_id = $1 AND product_id = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		userID, productID, payment.StatusActive,
	)
}

func (s *PgStore) CurrentRecord(ctx context.Context, userID string) (*Record, error) {
	return s.queryRecord(ctx, s.db, `
		SELECT `+recordColumns+` FROM billing
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`,
		userID, payment.StatusActive,
	)
}

func (s *PgStore) SetRecordProduct(ctx context.Context, id, productID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE billing SET product_id = $2, updated_at = now() WHERE id = $1`, id, productID)
	if err != nil {
		return errors.Join(ErrFailedToUpdateRecord, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PgStore) CancelRecord(ctx context.Context, id uuid.UUID, at time.Time) (*Record, error) {
	return s.queryRecord(ctx, s.db, `
		UPDATE billing SET status = $2, ended_at = COALESCE(ended_at, $3), updated_at = now()
		WHERE id = $1
		RETURNING `+recordColumns,
		id, payment.StatusCanceled, at.UTC(),
	)
}

func (s *PgStore) ApplySubscriptionUpdate(ctx context.Context, providerID string, u payment.SubscriptionUpdate) (*Record, error) {
	r, err := s.queryRecord(ctx, s.db, `
		UPDATE billing SET
			status = $2,
			billing_interval = COALESCE(NULLIF($3, ''), billing_interval),
			current_period_start = COALESCE($4, current_period_start),
			current_period_end = COALESCE($5, current_period_end),
			cancel_at_period_end = $6,
			canceled_at = $7,
			ended_at = COALESCE(ended_at, $8),
			updated_at = now()
		WHERE provider_id = $1
		RETURNING `+recordColumns,
		providerID, u.Status, u.Interval, u.CurrentPeriodStart, u.CurrentPeriodEnd,
		u.CancelAtPeriodEnd, u.CanceledAt, u.EndedAt,
	)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, errors.Join(ErrFailedToUpdateRecord, err)
	}
	return r, err
}

func (s *PgStore) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ProductID != uuid.Nil {
		add("product_id = $%d", f.ProductID)
	}
	if f.EntitledOnly {
		add("status = $%d", payment.StatusActive)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	sql := `SELECT ` + recordColumns + ` FROM billing`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadRecords, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		r, err := scanRecord(row)
		if err != nil {
			return Record{}, err
		}
		return *r, nil
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadRecords, err)
	}
	return out, nil
}

const productColumns = `id, name, description, price, billing_interval, mode, usage_limit, has_trial,
	trial_duration, trial_usage_limit, marketing_taglines, status, price_id, is_free, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Interval, &p.Mode, &p.Limit, &p.HasTrial,
		&p.TrialDuration, &p.TrialUsageLimit, &p.MarketingTaglines, &p.Status, &p.PriceID, &p.IsFree,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	taglines := p.MarketingTaglines
	if taglines == nil {
		taglines = []string{}
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, billing_interval, mode, usage_limit, has_trial,
			trial_duration, trial_usage_limit, marketing_taglines, status, price_id, is_free)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price, p.Interval, p.Mode, p.Limit, p.HasTrial,
		p.TrialDuration, p.TrialUsageLimit, taglines, p.Status, p.PriceID, p.IsFree,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Join(ErrFailedToSaveProduct, err)
	}
	return nil
}

func (s *PgStore) UpdateProduct(ctx context.Context, p *Product) error {
	taglines := p.MarketingTaglines
	if taglines == nil {
		taglines = []string{}
	}
	err := s.db.QueryRow(ctx, `
		UPDATE products SET name = $2, description = $3, price = $4, billing_interval = $5, mode = $6,
			usage_limit = $7, has_trial = $8, trial_duration = $9, trial_usage_limit = $10,
			marketing_taglines = $11, status = $12, price_id = $13, is_free = $14, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price, p.Interval, p.Mode, p.Limit, p.HasTrial,
		p.TrialDuration, p.TrialUsageLimit, taglines, p.Status, p.PriceID, p.IsFree,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return ErrProductNotFound
		}
		return errors.Join(ErrFailedToSaveProduct, err)
	}
	return nil
}

func (s *PgStore) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrProductNotFound
		}
		return nil, errors.Join(ErrFailedToLoadProducts, err)
	}
	return p, nil
}

func (s *PgStore) GetProductByPriceID(ctx context.Context, priceID string) (*Product, error) {
	if priceID == "" {
		return nil, ErrProductNotFound
	}
	p, err := scanProduct(s.db.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE price_id = $1
		ORDER BY created_at DESC LIMIT 1`, priceID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrProductNotFound
		}
		return nil, errors.Join(ErrFailedToLoadProducts, err)
	}
	return p, nil
}

func (s *PgStore) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if activeOnly {
		sql += ` WHERE status = $1`
		args = append(args, ProductActive)
	}
	sql += ` ORDER BY created_at, price`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadProducts, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		p, err := scanProduct(row)
		if err != nil {
			return Product{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadProducts, err)
	}
	return out, nil
}
