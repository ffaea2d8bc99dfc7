// Package pgstore implements subscription.Store on PostgreSQL via pgx/v5.
//
// Writers are serialized per subscription with SELECT ... FOR UPDATE inside
// the transaction a lifecycle action opens, so two concurrent actions on the
// same subscription cannot both observe the pre-transition state. All rows a
// transaction touches (subscription, parameters, meter usages) commit or roll
// back together.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/marketkit/pkg/pg"
	"github.com/dmitrymomot/marketkit/subscription"
)

// Store is the PostgreSQL implementation of subscription.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an established connection pool.
// Panics on a nil pool to fail fast during initialization.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pgx pool is required")
	}
	return &Store{pool: pool}
}

var _ subscription.Store = (*Store)(nil)

const subscriptionColumns = `id, name, offer_id, plan_id, owner, quantity,
	status, provisioning_status, provisioning_type, operation_id, agent_id,
	retry_count, last_exception, created_at, updated_at, activated_at, activated_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	var (
		sub         subscription.Subscription
		operationID uuid.NullUUID
		agentID     uuid.NullUUID
	)
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.OfferID, &sub.PlanID, &sub.Owner, &sub.Quantity,
		&sub.Status, &sub.ProvisioningStatus, &sub.ProvisioningType, &operationID, &agentID,
		&sub.RetryCount, &sub.LastException, &sub.CreatedAt, &sub.UpdatedAt, &sub.ActivatedAt, &sub.ActivatedBy,
	)
	if err != nil {
		return nil, err
	}
	if operationID.Valid {
		id := operationID.UUID
		sub.OperationID = &id
	}
	if agentID.Valid {
		id := agentID.UUID
		sub.AgentID = &id
	}
	return &sub, nil
}

func nullable(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	params, err := s.parameters(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	sub.InputParameters = params
	return sub, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) parameters(ctx context.Context, q querier, id uuid.UUID) ([]subscription.Parameter, error) {
	rows, err := q.Query(ctx,
		`SELECT subscription_id, name, value, type FROM subscription_parameters
		 WHERE subscription_id = $1 ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription parameters: %w", err)
	}
	defer rows.Close()

	var params []subscription.Parameter
	for rows.Next() {
		var p subscription.Parameter
		if err := rows.Scan(&p.SubscriptionID, &p.Name, &p.Value, &p.Type); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

func (s *Store) List(ctx context.Context) ([]*subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) Count(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM subscriptions WHERE id = $1`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx subscription.Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&storeTx{tx: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type storeTx struct {
	tx pgx.Tx
}

// Get locks the subscription row for the rest of the transaction so
// concurrent lifecycle actions on the same id queue up instead of racing.
func (t *storeTx) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (t *storeTx) Insert(ctx context.Context, sub *subscription.Subscription) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sub.ID, sub.Name, sub.OfferID, sub.PlanID, sub.Owner, sub.Quantity,
		sub.Status, sub.ProvisioningStatus, sub.ProvisioningType, nullable(sub.OperationID), nullable(sub.AgentID),
		sub.RetryCount, sub.LastException, sub.CreatedAt, sub.UpdatedAt, sub.ActivatedAt, sub.ActivatedBy,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(subscription.ErrSubscriptionExists, err)
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (t *storeTx) InsertParameters(ctx context.Context, params []subscription.Parameter) error {
	for _, p := range params {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO subscription_parameters (subscription_id, name, value, type)
			 VALUES ($1, $2, $3, $4)`,
			p.SubscriptionID, p.Name, p.Value, p.Type)
		if err != nil {
			return fmt.Errorf("failed to insert subscription parameter %q: %w", p.Name, err)
		}
	}
	return nil
}

func (t *storeTx) InsertMeterUsages(ctx context.Context, usages []subscription.MeterUsage) error {
	for _, u := range usages {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO subscription_custom_meter_usages (meter_id, subscription_id, enabled, created_at, unsubscribed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			u.MeterID, u.SubscriptionID, u.Enabled, u.CreatedAt, u.UnsubscribedAt)
		if err != nil {
			return fmt.Errorf("failed to insert meter usage for meter %d: %w", u.MeterID, err)
		}
	}
	return nil
}

func (t *storeTx) Update(ctx context.Context, sub *subscription.Subscription) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE subscriptions SET
			name = $2, offer_id = $3, plan_id = $4, owner = $5, quantity = $6,
			status = $7, provisioning_status = $8, provisioning_type = $9,
			operation_id = $10, agent_id = $11, retry_count = $12, last_exception = $13,
			updated_at = $14, activated_at = $15, activated_by = $16
		 WHERE id = $1`,
		sub.ID, sub.Name, sub.OfferID, sub.PlanID, sub.Owner, sub.Quantity,
		sub.Status, sub.ProvisioningStatus, sub.ProvisioningType,
		nullable(sub.OperationID), nullable(sub.AgentID), sub.RetryCount, sub.LastException,
		sub.UpdatedAt, sub.ActivatedAt, sub.ActivatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (t *storeTx) EnabledMeterUsages(ctx context.Context, subscriptionID uuid.UUID) ([]subscription.MeterUsage, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT meter_id, subscription_id, enabled, created_at, unsubscribed_at
		 FROM subscription_custom_meter_usages
		 WHERE subscription_id = $1 AND enabled`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meter usages: %w", err)
	}
	defer rows.Close()

	var usages []subscription.MeterUsage
	for rows.Next() {
		var u subscription.MeterUsage
		if err := rows.Scan(&u.MeterID, &u.SubscriptionID, &u.Enabled, &u.CreatedAt, &u.UnsubscribedAt); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (t *storeTx) StampMeterUsagesUnsubscribed(ctx context.Context, subscriptionID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE subscription_custom_meter_usages SET unsubscribed_at = $2
		 WHERE subscription_id = $1 AND enabled`, subscriptionID, at)
	if err != nil {
		return fmt.Errorf("failed to stamp meter usages: %w", err)
	}
	return nil
}
