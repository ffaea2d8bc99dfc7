package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions and their owned rows (parameters and custom
// meter usages). Read methods observe a consistent snapshot and take no lock.
//
// Get returns ErrSubscriptionNotFound when the id is absent; duplicate rows
// for one id must surface through Count so the caller can fail with
// ErrDuplicateResource.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Count(ctx context.Context, id uuid.UUID) (int64, error)

	// InTx runs fn inside one transaction. All writes performed through the
	// Tx commit together or not at all. The store must serialize concurrent
	// transactions touching the same subscription: two writers racing on one
	// id cannot both observe the pre-transition state and both succeed.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface of one open transaction.
type Tx interface {
	// Get reads the current subscription row and holds it against concurrent
	// writers until the transaction ends.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	Insert(ctx context.Context, sub *Subscription) error
	InsertParameters(ctx context.Context, params []Parameter) error
	InsertMeterUsages(ctx context.Context, usages []MeterUsage) error
	Update(ctx context.Context, sub *Subscription) error

	// EnabledMeterUsages returns the still-enabled meter usage rows of a
	// subscription as seen by this transaction.
	EnabledMeterUsages(ctx context.Context, subscriptionID uuid.UUID) ([]MeterUsage, error)

	// StampMeterUsagesUnsubscribed sets UnsubscribedAt on every still-enabled
	// meter usage row of the subscription. Already disabled rows are untouched.
	StampMeterUsagesUnsubscribed(ctx context.Context, subscriptionID uuid.UUID, at time.Time) error
}
