package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Offer is a marketplace-listed product family containing one or more plans.
type Offer struct {
	ID          int64
	Name        string
	DisplayName string
}

// Plan is a purchasable tier within an offer.
type Plan struct {
	ID          int64
	OfferID     int64
	Name        string
	DisplayName string
}

// OfferParameter describes one input the offer requires from the subscriber.
type OfferParameter struct {
	Name        string
	DisplayName string
	ValueType   string // "string", "number", "boolean" or "list"
}

// Product is the deployable counterpart of an offer for the self-host path.
type Product struct {
	ID       int64
	Name     string
	HostType string // "SaaS", "BYOC" or "Both"
}

// Deployment is one deployable configuration of a product.
type Deployment struct {
	ID        int64
	ProductID int64
	Name      string
}

// Agent is an autonomous self-host endpoint authenticated via a per-agent
// signing secret.
type Agent struct {
	ID   uuid.UUID
	Name string
	Key  string // shared HMAC signing secret
}

// APICredential is the API-credential sub-resource of a subscription.
type APICredential struct {
	PrimaryKey   string
	SecondaryKey string
	BaseURL      string
}

// CustomMeter is a billable usage dimension defined per offer.
type CustomMeter struct {
	ID        int64
	OfferName string
	Name      string
}

// ResolvedSubscription is the result of resolving an opaque marketplace token.
type ResolvedSubscription struct {
	ID        uuid.UUID
	Name      string
	OfferName string
	PlanName  string
}

// OfferLookup reads offers and their declared parameters.
// Implementations return ErrOfferNotFound on a miss.
type OfferLookup interface {
	ByName(ctx context.Context, offerName string) (*Offer, error)
	ByID(ctx context.Context, offerID int64) (*Offer, error)
	Parameters(ctx context.Context, offerName string) ([]OfferParameter, error)
}

// PlanLookup reads plans. Implementations return ErrPlanNotFound on a miss.
type PlanLookup interface {
	ByName(ctx context.Context, offerName, planName string) (*Plan, error)
	ByID(ctx context.Context, planID int64) (*Plan, error)
}

// ProductLookup reads products and their deployments.
// ByOfferID returns ErrProductNotFound when no product is linked to the
// offer, which the layout resolver treats as "SaaS only".
type ProductLookup interface {
	ByName(ctx context.Context, productName string) (*Product, error)
	ByOfferID(ctx context.Context, offerID int64) (*Product, error)
	Deployments(ctx context.Context, productName string) ([]Deployment, error)
}

// AgentLookup reads agents. Implementations return ErrAgentNotFound on a miss.
type AgentLookup interface {
	ByID(ctx context.Context, agentID uuid.UUID) (*Agent, error)
	DefaultSaaSAgent(ctx context.Context) (*Agent, error)
}

// CredentialLookup reads the API-credential sub-resource of a subscription.
// Implementations return ErrCredentialNotFound when none has been provisioned.
type CredentialLookup interface {
	BySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) (*APICredential, error)
}

// MeterLookup reads the custom meters defined on an offer.
type MeterLookup interface {
	AllForOffer(ctx context.Context, offerName string) ([]CustomMeter, error)
}

// FulfillmentGateway wraps the marketplace fulfillment protocol. It resolves
// an opaque landing-page token into the purchased subscription's identifiers
// and fails on an invalid or expired token.
type FulfillmentGateway interface {
	ResolveToken(ctx context.Context, token string) (*ResolvedSubscription, error)
}
