package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/marketkit/pkg/logger"
)

// Service manages the lifecycle of marketplace subscriptions. Every mutating
// operation validates the transition table before writing and performs its
// multi-row writes in a single store transaction.
type Service interface {
	// Reads. Each returned subscription is enriched with offer/plan display
	// names and, best-effort, its API credentials.
	GetAll(ctx context.Context, filter Filter) ([]*Subscription, error)
	GetAllActiveByOffer(ctx context.Context, offerName string) ([]*Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Warnings(ctx context.Context, id *uuid.UUID) ([]Warning, error)

	// Lifecycle actions.
	Create(ctx context.Context, sub *Subscription) (*Subscription, error)

	// Update changes the subscription's plan or its quantity, never both in
	// one call. A plan change starts a provisioning cycle; a quantity change
	// is pure bookkeeping and leaves the provisioning state untouched.
	Update(ctx context.Context, sub *Subscription, operationID uuid.UUID) (*Subscription, error)
	Unsubscribe(ctx context.Context, id, operationID uuid.UUID) (*Subscription, error)
	Suspend(ctx context.Context, id, operationID uuid.UUID) (*Subscription, error)
	Reinstate(ctx context.Context, id, operationID uuid.UUID) (*Subscription, error)
	DeleteData(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Activate(ctx context.Context, id uuid.UUID, activatedBy string) (*Subscription, error)

	// ResolveLayout turns a landing-page token into a subscription layout.
	// It is a pure read path invoked before any subscription exists.
	ResolveLayout(ctx context.Context, token, callerIdentity string) (*Layout, error)
}

// Lookups bundles the collaborator catalogs the service reads from.
// All members are required.
type Lookups struct {
	Offers      OfferLookup
	Plans       PlanLookup
	Products    ProductLookup
	Agents      AgentLookup
	Credentials CredentialLookup
	Meters      MeterLookup
}

type service struct {
	store   Store
	lookups Lookups
	gateway FulfillmentGateway

	log              *slog.Logger
	now              func() time.Time
	defaultActivator string
	testToken        string
}

// NewService creates the subscription lifecycle service. Panics when a
// required dependency is nil to fail fast during initialization. Use
// ServiceOption functions for optional settings such as the logger or clock.
func NewService(store Store, lookups Lookups, gateway FulfillmentGateway, opts ...ServiceOption) Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if gateway == nil {
		panic("subscription: FulfillmentGateway is required")
	}
	if lookups.Offers == nil || lookups.Plans == nil || lookups.Products == nil ||
		lookups.Agents == nil || lookups.Credentials == nil || lookups.Meters == nil {
		panic("subscription: all Lookups members are required")
	}

	s := &service{
		store:            store,
		lookups:          lookups,
		gateway:          gateway,
		log:              slog.Default(),
		now:              func() time.Time { return time.Now().UTC() },
		defaultActivator: DefaultActivator,
		testToken:        DefaultTestToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// identityMatches is the platform identity-equivalence check: user keys are
// opaque strings compared case-insensitively.
func identityMatches(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// enrich resolves the denormalized offer/plan display names from the foreign
// keys and attaches the API credentials when the sub-resource exists. A
// missing credential never fails the read.
func (s *service) enrich(ctx context.Context, sub *Subscription) error {
	offer, err := s.lookups.Offers.ByID(ctx, sub.OfferID)
	if err != nil {
		return err
	}
	sub.OfferName = offer.Name

	plan, err := s.lookups.Plans.ByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	sub.PlanName = plan.Name

	cred, err := s.lookups.Credentials.BySubscriptionID(ctx, sub.ID)
	switch {
	case err == nil:
		sub.PrimaryKey = cred.PrimaryKey
		sub.SecondaryKey = cred.SecondaryKey
		sub.BaseURL = cred.BaseURL
	case errors.Is(err, ErrCredentialNotFound):
		// No credentials provisioned yet; leave the fields empty.
	default:
		return err
	}
	return nil
}

func (s *service) GetAll(ctx context.Context, filter Filter) ([]*Subscription, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if !filter.matches(sub) {
			continue
		}
		if err := s.enrich(ctx, sub); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}

	s.log.InfoContext(ctx, "listed subscriptions", slog.Int("count", len(out)))
	return out, nil
}

func (s *service) GetAllActiveByOffer(ctx context.Context, offerName string) ([]*Subscription, error) {
	offer, err := s.lookups.Offers.ByName(ctx, offerName)
	if err != nil {
		return nil, err
	}

	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.OfferID != offer.ID {
			continue
		}
		if err := s.enrich(ctx, sub); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}

	s.log.InfoContext(ctx, "listed subscriptions by offer",
		logger.OfferName(offerName), slog.Int("count", len(out)))
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	count, err := s.store.Count(ctx, id)
	if err != nil {
		return false, err
	}
	// More than one row per id signals a storage-layer bug, never a user error.
	if count > 1 {
		return false, errors.Join(ErrDuplicateResource, fmt.Errorf("subscription %s has %d rows", id, count))
	}
	return count == 1, nil
}

func (s *service) Create(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub == nil {
		return nil, ErrPayloadNotProvided
	}

	exists, err := s.Exists(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Join(ErrSubscriptionExists, fmt.Errorf("subscription %s", sub.ID))
	}

	if err := s.validateParameters(ctx, sub); err != nil {
		return nil, err
	}

	offer, err := s.lookups.Offers.ByName(ctx, sub.OfferName)
	if err != nil {
		return nil, err
	}
	plan, err := s.lookups.Plans.ByName(ctx, sub.OfferName, sub.PlanName)
	if err != nil {
		return nil, err
	}

	sub.OfferID = offer.ID
	sub.PlanID = plan.ID
	// Quantity is pinned to 1 to work around a marketplace service bug.
	sub.Quantity = 1
	sub.CreatedAt = s.now()
	sub.RetryCount = 0
	if err := apply(sub, ActionCreate, nil); err != nil {
		return nil, err
	}

	if sub.AgentID == nil {
		agent, err := s.lookups.Agents.DefaultSaaSAgent(ctx)
		if err != nil {
			return nil, err
		}
		id := agent.ID
		sub.AgentID = &id
	}

	meters, err := s.lookups.Meters.AllForOffer(ctx, offer.Name)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.Insert(ctx, sub); err != nil {
			return err
		}

		params := make([]Parameter, len(sub.InputParameters))
		for i, p := range sub.InputParameters {
			p.SubscriptionID = sub.ID
			params[i] = p
		}
		if err := tx.InsertParameters(ctx, params); err != nil {
			return err
		}

		usages := make([]MeterUsage, len(meters))
		for i, meter := range meters {
			usages[i] = MeterUsage{
				MeterID:        meter.ID,
				SubscriptionID: sub.ID,
				Enabled:        true,
				CreatedAt:      sub.CreatedAt,
			}
		}
		return tx.InsertMeterUsages(ctx, usages)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription created",
		logger.SubscriptionID(sub.ID), logger.OfferName(sub.OfferName), logger.PlanName(sub.PlanName))
	return sub, nil
}

// validateParameters checks that every offer-declared parameter is present in
// the payload with a matching name and declared type. A declared type of
// "list" is accepted as "string".
func (s *service) validateParameters(ctx context.Context, sub *Subscription) error {
	declared, err := s.lookups.Offers.Parameters(ctx, sub.OfferName)
	if err != nil {
		return err
	}

	for _, param := range declared {
		wantType := param.ValueType
		if strings.EqualFold(wantType, "list") {
			wantType = "string"
		}

		found := false
		for _, input := range sub.InputParameters {
			if input.Name == param.Name && input.Type == wantType {
				found = true
				break
			}
		}
		if !found {
			return errors.Join(ErrParameterNotProvided, fmt.Errorf("parameter %q of type %q", param.Name, wantType))
		}
	}
	return nil
}

func (s *service) Update(ctx context.Context, sub *Subscription, operationID uuid.UUID) (*Subscription, error) {
	if sub == nil {
		return nil, ErrPayloadNotProvided
	}

	var updated *Subscription
	err := s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.Get(ctx, sub.ID)
		if err != nil {
			return err
		}
		if err := guardFor(current, ActionUpdate); err != nil {
			return err
		}

		offer, err := s.lookups.Offers.ByID(ctx, current.OfferID)
		if err != nil {
			return err
		}
		plan, err := s.lookups.Plans.ByID(ctx, current.PlanID)
		if err != nil {
			return err
		}

		planChanged := sub.PlanName != "" && sub.PlanName != plan.Name
		quantityChanged := sub.Quantity != 0 && sub.Quantity != current.Quantity
		if planChanged && quantityChanged {
			return ErrPlanAndQuantityChange
		}

		switch {
		case planChanged:
			s.log.InfoContext(ctx, "changing subscription plan",
				logger.SubscriptionID(current.ID), logger.PlanName(plan.Name), slog.String("new_plan", sub.PlanName))
			newPlan, err := s.lookups.Plans.ByName(ctx, offer.Name, sub.PlanName)
			if err != nil {
				return err
			}
			current.PlanID = newPlan.ID
			if err := apply(current, ActionUpdate, &operationID); err != nil {
				return err
			}
		case quantityChanged:
			s.log.InfoContext(ctx, "changing subscription quantity",
				logger.SubscriptionID(current.ID), slog.Int("quantity", sub.Quantity))
			current.Quantity = sub.Quantity
		}

		now := s.now()
		current.UpdatedAt = &now
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enrich(ctx, updated); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription updated",
		logger.SubscriptionID(updated.ID), logger.OperationID(operationID))
	return updated, nil
}

// requestProvisioning records a provisioning request for the action: it
// advances the state triple to ArmTemplatePending plus the action's intent
// inside one transaction. Unsubscribe additionally stamps UnsubscribedAt on
// every still-enabled meter usage row with the same timestamp.
func (s *service) requestProvisioning(ctx context.Context, id uuid.UUID, action Action, operationID *uuid.UUID) (*Subscription, error) {
	var updated *Subscription
	err := s.store.InTx(ctx, func(tx Tx) error {
		sub, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(sub, action, operationID); err != nil {
			return err
		}

		now := s.now()
		sub.UpdatedAt = &now

		if action == ActionUnsubscribe {
			usages, err := tx.EnabledMeterUsages(ctx, id)
			if err != nil {
				return err
			}
			if len(usages) > 0 {
				if err := tx.StampMeterUsagesUnsubscribed(ctx, id, now); err != nil {
					return err
				}
			}
		}
		if err := tx.Update(ctx, sub); err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enrich(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Unsubscribe(ctx context.Context, id, operationID uuid.UUID) (*Subscription, error) {
	sub, err := s.requestProvisioning(ctx, id, ActionUnsubscribe, &operationID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription unsubscribe requested",
		logger.SubscriptionID(id), logger.OperationID(operationID),
		logger.OfferName(sub.OfferName), logger.PlanName(sub.PlanName))
	return sub, nil
}

func (s *service) Suspend(ctx context.Context, id, operationID uuid.UUID) (*Subscription, error) {
	sub, err := s.requestProvisioning(ctx, id, ActionSuspend, &operationID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription suspend requested",
		logger.SubscriptionID(id), logger.OperationID(operationID))
	return sub, nil
}

func (s *service) Reinstate(ctx context.Context, id, operationID uuid.UUID) (*Subscription, error) {
	sub, err := s.requestProvisioning(ctx, id, ActionReinstate, &operationID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription reinstate requested",
		logger.SubscriptionID(id), logger.OperationID(operationID))
	return sub, nil
}

func (s *service) DeleteData(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.requestProvisioning(ctx, id, ActionDeleteData, nil)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription data deletion requested", logger.SubscriptionID(id))
	return sub, nil
}

func (s *service) Activate(ctx context.Context, id uuid.UUID, activatedBy string) (*Subscription, error) {
	if activatedBy == "" {
		activatedBy = s.defaultActivator
	}

	var updated *Subscription
	err := s.store.InTx(ctx, func(tx Tx) error {
		sub, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(sub, ActionActivate, nil); err != nil {
			return err
		}

		now := s.now()
		sub.ActivatedAt = &now
		sub.ActivatedBy = activatedBy
		if err := tx.Update(ctx, sub); err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enrich(ctx, updated); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription activated",
		logger.SubscriptionID(id), slog.String("activated_by", activatedBy))
	return updated, nil
}

func (s *service) Warnings(ctx context.Context, id *uuid.UUID) ([]Warning, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var warnings []Warning
	for _, sub := range subs {
		if !sub.ProvisioningStatus.IsErrorOrWarning() {
			continue
		}
		if id != nil && sub.ID != *id {
			continue
		}

		since := sub.CreatedAt
		if sub.UpdatedAt != nil {
			since = *sub.UpdatedAt
		}
		warnings = append(warnings, Warning{
			SubscriptionID: sub.ID,
			Message:        fmt.Sprintf("Subscription in error state %s since %s.", sub.ProvisioningStatus, since.Format(time.RFC3339)),
			Details:        fmt.Sprintf("Last exception: %s.", sub.LastException),
		})
	}
	return warnings, nil
}
