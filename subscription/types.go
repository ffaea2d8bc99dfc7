package subscription

import (
	"time"

	"github.com/google/uuid"
)

// FulfillmentState is the customer-visible lifecycle stage of a subscription.
type FulfillmentState string

const (
	FulfillmentPendingStart FulfillmentState = "PendingFulfillmentStart"
	FulfillmentSubscribed   FulfillmentState = "Subscribed"
	FulfillmentSuspended    FulfillmentState = "Suspended"
	FulfillmentUnsubscribed FulfillmentState = "Unsubscribed"
)

// ProvisioningState tracks the in-flight infrastructure operation for a
// subscription. The terminal flip to Succeeded or Failed is driven by the
// external provisioning callback, not by this package.
type ProvisioningState string

const (
	ProvisioningPending            ProvisioningState = "ProvisioningPending"
	ProvisioningArmTemplatePending ProvisioningState = "ArmTemplatePending"
	ProvisioningSucceeded          ProvisioningState = "Succeeded"
	ProvisioningFailed             ProvisioningState = "Failed"
	ProvisioningWarning            ProvisioningState = "Warning"
)

// IsErrorOrWarning reports whether the state should surface as a subscription warning.
func (s ProvisioningState) IsErrorOrWarning() bool {
	return s == ProvisioningFailed || s == ProvisioningWarning
}

// ProvisioningType records which action started the current provisioning cycle.
type ProvisioningType string

const (
	TypeSubscribe   ProvisioningType = "Subscribe"
	TypeUpdate      ProvisioningType = "Update"
	TypeUnsubscribe ProvisioningType = "Unsubscribe"
	TypeSuspend     ProvisioningType = "Suspend"
	TypeReinstate   ProvisioningType = "Reinstate"
	TypeDeleteData  ProvisioningType = "DeleteData"
)

// Subscription is the central entity binding a customer to a purchased plan.
type Subscription struct {
	ID        uuid.UUID
	Name      string
	OfferID   int64
	PlanID    int64
	OfferName string // denormalized on read; identifies the offer on create
	PlanName  string // denormalized on read; identifies the plan on create
	Owner     string
	Quantity  int // pinned to 1 after creation (marketplace service workaround)

	Status             FulfillmentState
	ProvisioningStatus ProvisioningState
	ProvisioningType   ProvisioningType
	OperationID        *uuid.UUID // correlation id of the in-flight operation
	AgentID            *uuid.UUID
	RetryCount         int
	LastException      string

	CreatedAt   time.Time
	UpdatedAt   *time.Time
	ActivatedAt *time.Time
	ActivatedBy string

	InputParameters []Parameter

	// API credential fields are populated best-effort on reads and are never
	// persisted with the subscription row.
	PrimaryKey   string
	SecondaryKey string
	BaseURL      string
}

// Parameter is a name/value/type input owned by exactly one subscription.
// Parameters are written once at creation time; names are unique per subscription.
type Parameter struct {
	SubscriptionID uuid.UUID
	Name           string
	Value          string
	Type           string
}

// MeterUsage tracks one custom meter of the owning offer for one subscription.
// A row is created per (subscription, meter) pair in the same transaction as
// the subscription itself.
type MeterUsage struct {
	MeterID        int64
	SubscriptionID uuid.UUID
	Enabled        bool
	CreatedAt      time.Time
	UnsubscribedAt *time.Time
}

// Warning is a read-time projection over subscriptions stuck in an error or
// warning provisioning state. It is never persisted.
type Warning struct {
	SubscriptionID uuid.UUID
	Message        string
	Details        string
}

// HostType names a way a product can be hosted for the subscriber.
type HostType string

const (
	HostTypeSaaS     HostType = "SaaS"
	HostTypeSelfhost HostType = "Selfhost"
)

// OfferLayout is the offer display pair shown on the landing page.
type OfferLayout struct {
	Name        string
	DisplayName string
}

// PlanLayout is one selectable plan (or deployment) on the landing page.
type PlanLayout struct {
	Name        string
	DisplayName string
}

// Layout is the landing-page presentation of a subscription that does not
// exist yet. It is produced only by ResolveLayout.
type Layout struct {
	SubscriptionID   uuid.UUID
	SubscriptionName string
	Offer            OfferLayout
	Plans            []PlanLayout
	HostTypes        []HostType
	Parameters       []OfferParameter
	AgentURL         string // set only for signed agent tokens
}

// Filter narrows GetAll results. Zero values match everything.
type Filter struct {
	Statuses []FulfillmentState // empty matches any status
	Owner    string             // case-insensitive exact match; empty matches any owner
}

// matches reports whether the subscription passes the filter.
func (f Filter) matches(sub *Subscription) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if sub.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Owner != "" && !identityMatches(f.Owner, sub.Owner) {
		return false
	}
	return true
}
