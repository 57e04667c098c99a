package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelproof/pixelproof/internal/domain"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store on an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// =============================================================================
// SubscriptionStore
// =============================================================================

const subscriptionColumns = `identity, plan_id, status, cancel_at_period_end,
	current_period_end, customer_id, subscription_id, price_id,
	price_lookup_key, price_nickname, product_name, amount_cents, currency,
	updated_at`

func scanSubscription(row pgx.Row) (*domain.SubscriptionRecord, error) {
	var rec domain.SubscriptionRecord
	err := row.Scan(
		&rec.Identity,
		&rec.PlanID,
		&rec.Status,
		&rec.CancelAtPeriodEnd,
		&rec.CurrentPeriodEnd,
		&rec.CustomerID,
		&rec.SubscriptionID,
		&rec.PriceID,
		&rec.PriceLookupKey,
		&rec.PriceNickname,
		&rec.ProductName,
		&rec.AmountCents,
		&rec.Currency,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &rec, nil
}

func (s *Postgres) Get(ctx context.Context, identity string) (*domain.SubscriptionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE identity = $1`,
		identity)
	return scanSubscription(row)
}

func (s *Postgres) GetByCustomerID(ctx context.Context, customerID string) (*domain.SubscriptionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE customer_id = $1 LIMIT 1`,
		customerID)
	return scanSubscription(row)
}

func (s *Postgres) LinkCustomer(ctx context.Context, identity, customerID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (identity, status, customer_id, updated_at)
		VALUES ($1, 'none', $2, now())
		ON CONFLICT (identity) DO UPDATE
		SET customer_id = EXCLUDED.customer_id, updated_at = now()`,
		identity, customerID)
	if err != nil {
		return fmt.Errorf("link customer: %w", err)
	}
	return nil
}

func (s *Postgres) Upsert(ctx context.Context, rec *domain.SubscriptionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (identity, plan_id, status, cancel_at_period_end,
			current_period_end, customer_id, subscription_id, price_id,
			price_lookup_key, price_nickname, product_name, amount_cents,
			currency, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (identity) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			current_period_end = EXCLUDED.current_period_end,
			customer_id = EXCLUDED.customer_id,
			subscription_id = EXCLUDED.subscription_id,
			price_id = EXCLUDED.price_id,
			price_lookup_key = EXCLUDED.price_lookup_key,
			price_nickname = EXCLUDED.price_nickname,
			product_name = EXCLUDED.product_name,
			amount_cents = EXCLUDED.amount_cents,
			currency = EXCLUDED.currency,
			updated_at = now()`,
		rec.Identity, rec.PlanID, rec.Status, rec.CancelAtPeriodEnd,
		rec.CurrentPeriodEnd, rec.CustomerID, rec.SubscriptionID, rec.PriceID,
		rec.PriceLookupKey, rec.PriceNickname, rec.ProductName, rec.AmountCents,
		rec.Currency)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// =============================================================================
// QuotaStore
// =============================================================================

// ConsumeIfUnder runs the test-and-increment as a single conditional upsert.
// Postgres row-level locking serializes concurrent upserts on the same
// identity, so for N simultaneous calls exactly max succeed. A row whose day
// key differs from the requested day is reset to count 1 on success.
func (s *Postgres) ConsumeIfUnder(ctx context.Context, identity, day string, max int) (int, bool, error) {
	// The WHERE guard below only covers the DO UPDATE arm; a fresh insert
	// would grant a unit even against a zero ceiling without this check.
	if max <= 0 {
		return 0, false, nil
	}

	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO quota_counters AS q (identity, day, count, max, updated_at)
		VALUES ($1, $2, 1, $3, now())
		ON CONFLICT (identity) DO UPDATE SET
			day = EXCLUDED.day,
			count = CASE WHEN q.day = EXCLUDED.day THEN q.count + 1 ELSE 1 END,
			max = EXCLUDED.max,
			updated_at = now()
		WHERE q.day <> EXCLUDED.day OR q.count < EXCLUDED.max
		RETURNING count`,
		identity, day, max).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict row exists, same day, already at or over max.
			used := max
			if c, peekErr := s.Peek(ctx, identity); peekErr == nil && c != nil {
				used = c.UsedToday(day)
			}
			return used, false, nil
		}
		return 0, false, fmt.Errorf("consume quota: %w", err)
	}
	return count, true, nil
}

func (s *Postgres) Peek(ctx context.Context, identity string) (*domain.QuotaCounter, error) {
	var c domain.QuotaCounter
	err := s.pool.QueryRow(ctx,
		`SELECT identity, day, count, max, updated_at FROM quota_counters WHERE identity = $1`,
		identity).Scan(&c.Identity, &c.Day, &c.Count, &c.Max, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("peek quota: %w", err)
	}
	return &c, nil
}

// =============================================================================
// EventStore
// =============================================================================

func (s *Postgres) LogEvent(ctx context.Context, e *domain.EventLogEntry) error {
	received := e.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stripe_events (event_id, type, created, livemode, object_type,
			customer_id, subscription_id, identity, raw_size_bytes, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO UPDATE SET
			identity = EXCLUDED.identity,
			received_at = EXCLUDED.received_at`,
		e.EventID, e.Type, e.Created, e.Livemode, e.ObjectType,
		e.CustomerID, e.SubscriptionID, e.Identity, e.RawSizeBytes, received)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

func (s *Postgres) HasEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stripe_events WHERE event_id = $1)`,
		eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has event: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ParkOrphan(ctx context.Context, o *domain.OrphanEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stripe_orphans (subscription_id, customer_id, status, reason, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (subscription_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason`,
		o.SubscriptionID, o.CustomerID, o.Status, o.Reason)
	if err != nil {
		return fmt.Errorf("park orphan: %w", err)
	}
	return nil
}

// =============================================================================
// ComparisonStore
// =============================================================================

func (s *Postgres) Create(ctx context.Context, c *domain.Comparison) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO comparisons (id, identity, plan, image1_key, image2_key,
			report_key, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Identity, c.Plan, c.Image1Key, c.Image2Key,
		c.ReportKey, c.Model, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create comparison: %w", err)
	}
	return nil
}

func (s *Postgres) GetComparison(ctx context.Context, id uuid.UUID) (*domain.Comparison, error) {
	var c domain.Comparison
	err := s.pool.QueryRow(ctx, `
		SELECT id, identity, plan, image1_key, image2_key, report_key, model, created_at
		FROM comparisons WHERE id = $1`,
		id).Scan(&c.ID, &c.Identity, &c.Plan, &c.Image1Key,
		&c.Image2Key, &c.ReportKey, &c.Model, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get comparison: %w", err)
	}
	return &c, nil
}

func (s *Postgres) DeleteComparison(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM comparisons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comparison: %w", err)
	}
	return nil
}

func (s *Postgres) ListRecent(ctx context.Context, identity string, limit int) ([]domain.Comparison, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, identity, plan, image1_key, image2_key, report_key, model, created_at
		FROM comparisons
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		identity, limit)
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var out []domain.Comparison
	for rows.Next() {
		var c domain.Comparison
		if err := rows.Scan(&c.ID, &c.Identity, &c.Plan, &c.Image1Key,
			&c.Image2Key, &c.ReportKey, &c.Model, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
