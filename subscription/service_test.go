package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketkit/subscription"
)

// fakeCatalog backs every lookup interface plus the fulfillment gateway with
// in-memory fixtures.
type fakeCatalog struct {
	offers         []subscription.Offer
	offerParams    map[string][]subscription.OfferParameter
	plans          []subscription.Plan
	products       []subscription.Product
	deployments    map[string][]subscription.Deployment
	productByOffer map[int64]string
	agents         map[uuid.UUID]subscription.Agent
	defaultAgent   *subscription.Agent
	credentials    map[uuid.UUID]subscription.APICredential
	meters         map[string][]subscription.CustomMeter
	resolved       map[string]subscription.ResolvedSubscription
}

func (c *fakeCatalog) ByName(ctx context.Context, offerName string) (*subscription.Offer, error) {
	for _, o := range c.offers {
		if o.Name == offerName {
			offer := o
			return &offer, nil
		}
	}
	return nil, subscription.ErrOfferNotFound
}

func (c *fakeCatalog) ByID(ctx context.Context, offerID int64) (*subscription.Offer, error) {
	for _, o := range c.offers {
		if o.ID == offerID {
			offer := o
			return &offer, nil
		}
	}
	return nil, subscription.ErrOfferNotFound
}

func (c *fakeCatalog) Parameters(ctx context.Context, offerName string) ([]subscription.OfferParameter, error) {
	return c.offerParams[offerName], nil
}

type fakePlans struct{ catalog *fakeCatalog }

func (p fakePlans) ByName(ctx context.Context, offerName, planName string) (*subscription.Plan, error) {
	offer, err := p.catalog.ByName(ctx, offerName)
	if err != nil {
		return nil, err
	}
	for _, pl := range p.catalog.plans {
		if pl.OfferID == offer.ID && pl.Name == planName {
			plan := pl
			return &plan, nil
		}
	}
	return nil, subscription.ErrPlanNotFound
}

func (p fakePlans) ByID(ctx context.Context, planID int64) (*subscription.Plan, error) {
	for _, pl := range p.catalog.plans {
		if pl.ID == planID {
			plan := pl
			return &plan, nil
		}
	}
	return nil, subscription.ErrPlanNotFound
}

type fakeProducts struct{ catalog *fakeCatalog }

func (p fakeProducts) ByName(ctx context.Context, productName string) (*subscription.Product, error) {
	for _, pr := range p.catalog.products {
		if pr.Name == productName {
			product := pr
			return &product, nil
		}
	}
	return nil, subscription.ErrProductNotFound
}

func (p fakeProducts) ByOfferID(ctx context.Context, offerID int64) (*subscription.Product, error) {
	name, ok := p.catalog.productByOffer[offerID]
	if !ok {
		return nil, subscription.ErrProductNotFound
	}
	return p.ByName(ctx, name)
}

func (p fakeProducts) Deployments(ctx context.Context, productName string) ([]subscription.Deployment, error) {
	return p.catalog.deployments[productName], nil
}

type fakeAgents struct{ catalog *fakeCatalog }

func (a fakeAgents) ByID(ctx context.Context, agentID uuid.UUID) (*subscription.Agent, error) {
	agent, ok := a.catalog.agents[agentID]
	if !ok {
		return nil, subscription.ErrAgentNotFound
	}
	return &agent, nil
}

func (a fakeAgents) DefaultSaaSAgent(ctx context.Context) (*subscription.Agent, error) {
	if a.catalog.defaultAgent == nil {
		return nil, subscription.ErrAgentNotFound
	}
	agent := *a.catalog.defaultAgent
	return &agent, nil
}

type fakeCredentials struct{ catalog *fakeCatalog }

func (c fakeCredentials) BySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) (*subscription.APICredential, error) {
	cred, ok := c.catalog.credentials[subscriptionID]
	if !ok {
		return nil, subscription.ErrCredentialNotFound
	}
	return &cred, nil
}

type fakeMeters struct{ catalog *fakeCatalog }

func (m fakeMeters) AllForOffer(ctx context.Context, offerName string) ([]subscription.CustomMeter, error) {
	return m.catalog.meters[offerName], nil
}

type fakeGateway struct{ catalog *fakeCatalog }

func (g fakeGateway) ResolveToken(ctx context.Context, token string) (*subscription.ResolvedSubscription, error) {
	resolved, ok := g.catalog.resolved[token]
	if !ok {
		return nil, errors.New("marketplace rejected the token")
	}
	return &resolved, nil
}

func newTestCatalog() *fakeCatalog {
	defaultAgent := subscription.Agent{ID: uuid.New(), Name: "default-saas", Key: "default-saas-signing-key-0123456789ab"}
	return &fakeCatalog{
		offers: []subscription.Offer{
			{ID: 1, Name: "offer1", DisplayName: "Offer One"},
		},
		offerParams: map[string][]subscription.OfferParameter{
			"offer1": {
				{Name: "region", DisplayName: "Region", ValueType: "string"},
				{Name: "tags", DisplayName: "Tags", ValueType: "list"},
			},
		},
		plans: []subscription.Plan{
			{ID: 10, OfferID: 1, Name: "basic", DisplayName: "Basic"},
			{ID: 11, OfferID: 1, Name: "premium", DisplayName: "Premium"},
		},
		deployments:    map[string][]subscription.Deployment{},
		productByOffer: map[int64]string{},
		agents:         map[uuid.UUID]subscription.Agent{defaultAgent.ID: defaultAgent},
		defaultAgent:   &defaultAgent,
		credentials:    map[uuid.UUID]subscription.APICredential{},
		meters: map[string][]subscription.CustomMeter{
			"offer1": {
				{ID: 100, OfferName: "offer1", Name: "api_calls"},
				{ID: 101, OfferName: "offer1", Name: "storage_gb"},
			},
		},
		resolved: map[string]subscription.ResolvedSubscription{},
	}
}

func lookupsFor(catalog *fakeCatalog) subscription.Lookups {
	return subscription.Lookups{
		Offers:      catalog,
		Plans:       fakePlans{catalog: catalog},
		Products:    fakeProducts{catalog: catalog},
		Agents:      fakeAgents{catalog: catalog},
		Credentials: fakeCredentials{catalog: catalog},
		Meters:      fakeMeters{catalog: catalog},
	}
}

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store subscription.Store, catalog *fakeCatalog, opts ...subscription.ServiceOption) subscription.Service {
	opts = append([]subscription.ServiceOption{
		subscription.WithClock(func() time.Time { return testTime }),
	}, opts...)
	return subscription.NewService(store, lookupsFor(catalog), fakeGateway{catalog: catalog}, opts...)
}

func validPayload() *subscription.Subscription {
	return &subscription.Subscription{
		ID:        uuid.New(),
		Name:      "acme-prod",
		OfferName: "offer1",
		PlanName:  "basic",
		Owner:     "alice@example.com",
		Quantity:  5,
		InputParameters: []subscription.Parameter{
			{Name: "region", Value: "westus", Type: "string"},
			{Name: "tags", Value: "a,b", Type: "string"},
		},
	}
}

// seed writes a subscription directly through the store, bypassing the
// service, so tests can start from arbitrary lifecycle states.
func seed(t *testing.T, store subscription.Store, sub *subscription.Subscription, usages ...subscription.MeterUsage) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx subscription.Tx) error {
		if err := tx.Insert(context.Background(), sub); err != nil {
			return err
		}
		return tx.InsertMeterUsages(context.Background(), usages)
	})
	require.NoError(t, err)
}

func subscribedSucceeded(owner string) *subscription.Subscription {
	return &subscription.Subscription{
		ID:                 uuid.New(),
		Name:               "seeded",
		OfferID:            1,
		PlanID:             10,
		Owner:              owner,
		Quantity:           1,
		Status:             subscription.FulfillmentSubscribed,
		ProvisioningStatus: subscription.ProvisioningSucceeded,
		ProvisioningType:   subscription.TypeSubscribe,
		CreatedAt:          testTime.Add(-time.Hour),
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	catalog := newTestCatalog()
	store := subscription.NewMemoryStore()

	assert.Panics(t, func() {
		subscription.NewService(nil, lookupsFor(catalog), fakeGateway{catalog: catalog})
	})
	assert.Panics(t, func() {
		subscription.NewService(store, lookupsFor(catalog), nil)
	})
	assert.Panics(t, func() {
		lookups := lookupsFor(catalog)
		lookups.Meters = nil
		subscription.NewService(store, lookups, fakeGateway{catalog: catalog})
	})
}

func TestCreate(t *testing.T) {
	t.Parallel()

	t.Run("creates subscription with parameters and meter usages", func(t *testing.T) {
		t.Parallel()

		catalog := newTestCatalog()
		store := subscription.NewMemoryStore()
		svc := newTestService(store, catalog)

		payload := validPayload()
		created, err := svc.Create(context.Background(), payload)
		require.NoError(t, err)

		assert.Equal(t, subscription.FulfillmentPendingStart, created.Status)
		assert.Equal(t, subscription.ProvisioningPending, created.ProvisioningStatus)
		assert.Equal(t, subscription.TypeSubscribe, created.ProvisioningType)
		assert.Equal(t, int64(1), created.OfferID)
		assert.Equal(t, int64(10), created.PlanID)
		assert.Equal(t, 1, created.Quantity, "quantity is pinned to 1 regardless of the requested amount")
		assert.Equal(t, testTime, created.CreatedAt)
		require.NotNil(t, created.AgentID)
		assert.Equal(t, catalog.defaultAgent.ID, *created.AgentID)

		params := store.Parameters(payload.ID)
		require.Len(t, params, 2)
		for _, p := range params {
			assert.Equal(t, payload.ID, p.SubscriptionID)
		}

		usages := store.MeterUsages(payload.ID)
		require.Len(t, usages, 2)
		for _, u := range usages {
			assert.True(t, u.Enabled)
			assert.Equal(t, testTime, u.CreatedAt)
			assert.Nil(t, u.UnsubscribedAt)
		}
	})

	t.Run("nil payload", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())
		_, err := svc.Create(context.Background(), nil)
		assert.ErrorIs(t, err, subscription.ErrPayloadNotProvided)
	})

	t.Run("already exists", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		payload := validPayload()
		_, err := svc.Create(context.Background(), payload)
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), validPayloadWithID(payload.ID))
		assert.ErrorIs(t, err, subscription.ErrSubscriptionExists)
	})

	t.Run("missing required parameter", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())

		payload := validPayload()
		payload.InputParameters = payload.InputParameters[:1] // drop "tags"
		_, err := svc.Create(context.Background(), payload)
		assert.ErrorIs(t, err, subscription.ErrParameterNotProvided)
	})

	t.Run("parameter type mismatch", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())

		payload := validPayload()
		payload.InputParameters[0].Type = "number"
		_, err := svc.Create(context.Background(), payload)
		assert.ErrorIs(t, err, subscription.ErrParameterNotProvided)
	})

	t.Run("unknown offer", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())

		payload := validPayload()
		payload.OfferName = "nope"
		_, err := svc.Create(context.Background(), payload)
		assert.ErrorIs(t, err, subscription.ErrOfferNotFound)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())

		payload := validPayload()
		payload.PlanName = "nope"
		_, err := svc.Create(context.Background(), payload)
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("keeps caller-provided agent", func(t *testing.T) {
		t.Parallel()

		catalog := newTestCatalog()
		agentID := uuid.New()
		svc := newTestService(subscription.NewMemoryStore(), catalog)

		payload := validPayload()
		payload.AgentID = &agentID
		created, err := svc.Create(context.Background(), payload)
		require.NoError(t, err)
		require.NotNil(t, created.AgentID)
		assert.Equal(t, agentID, *created.AgentID)
	})
}

func validPayloadWithID(id uuid.UUID) *subscription.Subscription {
	payload := validPayload()
	payload.ID = id
	return payload
}

// meterFailStore injects a failure into the last write of the creation
// transaction to prove nothing of the transaction becomes visible.
type meterFailStore struct {
	*subscription.MemoryStore
	err error
}

func (s *meterFailStore) InTx(ctx context.Context, fn func(tx subscription.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx subscription.Tx) error {
		return fn(&meterFailTx{Tx: tx, err: s.err})
	})
}

type meterFailTx struct {
	subscription.Tx
	err error
}

func (t *meterFailTx) InsertMeterUsages(ctx context.Context, usages []subscription.MeterUsage) error {
	return t.err
}

func TestCreate_AtomicOnFailure(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	inner := subscription.NewMemoryStore()
	store := &meterFailStore{MemoryStore: inner, err: errBoom}
	svc := newTestService(store, newTestCatalog())

	payload := validPayload()
	_, err := svc.Create(context.Background(), payload)
	require.ErrorIs(t, err, errBoom)

	// The subscription and parameter inserts preceded the failing write and
	// must have rolled back with it.
	_, err = inner.Get(context.Background(), payload.ID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	assert.Empty(t, inner.Parameters(payload.ID))
	assert.Empty(t, inner.MeterUsages(payload.ID))
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	t.Run("plan change", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seed(t, store, seeded)

		operationID := uuid.New()
		updated, err := svc.Update(context.Background(), &subscription.Subscription{
			ID:       seeded.ID,
			PlanName: "premium",
		}, operationID)
		require.NoError(t, err)

		assert.Equal(t, int64(11), updated.PlanID)
		assert.Equal(t, "premium", updated.PlanName)
		assert.Equal(t, subscription.ProvisioningArmTemplatePending, updated.ProvisioningStatus)
		assert.Equal(t, subscription.TypeUpdate, updated.ProvisioningType)
		require.NotNil(t, updated.OperationID)
		assert.Equal(t, operationID, *updated.OperationID)
		require.NotNil(t, updated.UpdatedAt)
		assert.Equal(t, testTime, *updated.UpdatedAt)
	})

	t.Run("quantity change requests no provisioning", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seed(t, store, seeded)

		updated, err := svc.Update(context.Background(), &subscription.Subscription{
			ID:       seeded.ID,
			Quantity: 3,
		}, uuid.New())
		require.NoError(t, err)

		assert.Equal(t, 3, updated.Quantity)
		assert.Equal(t, subscription.ProvisioningSucceeded, updated.ProvisioningStatus)
		assert.Equal(t, subscription.TypeSubscribe, updated.ProvisioningType)
		assert.Nil(t, updated.OperationID)
	})

	t.Run("plan and quantity at once", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seed(t, store, seeded)

		_, err := svc.Update(context.Background(), &subscription.Subscription{
			ID:       seeded.ID,
			PlanName: "premium",
			Quantity: 3,
		}, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrPlanAndQuantityChange)
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seeded.ProvisioningStatus = subscription.ProvisioningArmTemplatePending
		seed(t, store, seeded)

		_, err := svc.Update(context.Background(), &subscription.Subscription{
			ID:       seeded.ID,
			PlanName: "premium",
		}, uuid.New())
		assert.True(t, subscription.IsNotReadyError(err))
	})

	t.Run("nil payload", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())
		_, err := svc.Update(context.Background(), nil, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrPayloadNotProvided)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())
		_, err := svc.Update(context.Background(), &subscription.Subscription{ID: uuid.New(), PlanName: "premium"}, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})
}

// stampFailStore fails the meter-usage stamp write, so a passing unsubscribe
// proves the write was never attempted.
type stampFailStore struct {
	*subscription.MemoryStore
}

func (s *stampFailStore) InTx(ctx context.Context, fn func(tx subscription.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(tx subscription.Tx) error {
		return fn(&stampFailTx{Tx: tx})
	})
}

type stampFailTx struct {
	subscription.Tx
}

func (t *stampFailTx) StampMeterUsagesUnsubscribed(ctx context.Context, subscriptionID uuid.UUID, at time.Time) error {
	return errors.New("unexpected meter usage write")
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	t.Run("stamps enabled meter usages in the same transaction", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		disabledAt := testTime.Add(-30 * time.Minute)
		seed(t, store, seeded,
			subscription.MeterUsage{MeterID: 100, SubscriptionID: seeded.ID, Enabled: true, CreatedAt: seeded.CreatedAt},
			subscription.MeterUsage{MeterID: 101, SubscriptionID: seeded.ID, Enabled: true, CreatedAt: seeded.CreatedAt},
			subscription.MeterUsage{MeterID: 102, SubscriptionID: seeded.ID, Enabled: false, CreatedAt: seeded.CreatedAt, UnsubscribedAt: &disabledAt},
		)

		operationID := uuid.New()
		updated, err := svc.Unsubscribe(context.Background(), seeded.ID, operationID)
		require.NoError(t, err)

		assert.Equal(t, subscription.ProvisioningArmTemplatePending, updated.ProvisioningStatus)
		assert.Equal(t, subscription.TypeUnsubscribe, updated.ProvisioningType)
		require.NotNil(t, updated.UpdatedAt)

		usages := store.MeterUsages(seeded.ID)
		require.Len(t, usages, 3)
		for _, u := range usages {
			switch u.MeterID {
			case 100, 101:
				require.NotNil(t, u.UnsubscribedAt)
				assert.Equal(t, *updated.UpdatedAt, *u.UnsubscribedAt,
					"meter usage stamp must equal the subscription's update timestamp")
			case 102:
				require.NotNil(t, u.UnsubscribedAt)
				assert.Equal(t, disabledAt, *u.UnsubscribedAt, "disabled rows keep their original stamp")
			}
		}
	})

	t.Run("no enabled meter usages means no stamp write", func(t *testing.T) {
		t.Parallel()

		inner := subscription.NewMemoryStore()
		store := &stampFailStore{MemoryStore: inner}
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		disabledAt := testTime.Add(-30 * time.Minute)
		seed(t, inner, seeded,
			subscription.MeterUsage{MeterID: 100, SubscriptionID: seeded.ID, Enabled: false, CreatedAt: seeded.CreatedAt, UnsubscribedAt: &disabledAt},
		)

		_, err := svc.Unsubscribe(context.Background(), seeded.ID, uuid.New())
		require.NoError(t, err)
	})

	t.Run("denied outside subscribed+succeeded", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seeded.Status = subscription.FulfillmentSuspended
		seed(t, store, seeded)

		_, err := svc.Unsubscribe(context.Background(), seeded.ID, uuid.New())
		var notReady *subscription.NotReadyError
		require.ErrorAs(t, err, &notReady)
		assert.Equal(t, seeded.ID, notReady.SubscriptionID)
		assert.Contains(t, notReady.Error(), seeded.ID.String())

		// State is untouched after a denial.
		current, getErr := store.Get(context.Background(), seeded.ID)
		require.NoError(t, getErr)
		assert.Equal(t, subscription.FulfillmentSuspended, current.Status)
		assert.Equal(t, subscription.ProvisioningSucceeded, current.ProvisioningStatus)
	})
}

func TestSuspendReinstateDeleteData(t *testing.T) {
	t.Parallel()

	t.Run("suspend", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seed(t, store, seeded)

		operationID := uuid.New()
		updated, err := svc.Suspend(context.Background(), seeded.ID, operationID)
		require.NoError(t, err)
		assert.Equal(t, subscription.TypeSuspend, updated.ProvisioningType)
		assert.Equal(t, subscription.ProvisioningArmTemplatePending, updated.ProvisioningStatus)
		require.NotNil(t, updated.OperationID)
		assert.Equal(t, operationID, *updated.OperationID)
	})

	t.Run("reinstate requires suspended", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seeded.Status = subscription.FulfillmentSuspended
		seed(t, store, seeded)

		updated, err := svc.Reinstate(context.Background(), seeded.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, subscription.TypeReinstate, updated.ProvisioningType)

		// A subscribed subscription cannot be reinstated.
		other := subscribedSucceeded("bob@example.com")
		seed(t, store, other)
		_, err = svc.Reinstate(context.Background(), other.ID, uuid.New())
		assert.True(t, subscription.IsNotReadyError(err))
	})

	t.Run("delete data requires unsubscribed and carries no operation id", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seeded.Status = subscription.FulfillmentUnsubscribed
		seed(t, store, seeded)

		updated, err := svc.DeleteData(context.Background(), seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.TypeDeleteData, updated.ProvisioningType)
		assert.Nil(t, updated.OperationID)

		other := subscribedSucceeded("bob@example.com")
		seed(t, store, other)
		_, err = svc.DeleteData(context.Background(), other.ID)
		assert.True(t, subscription.IsNotReadyError(err))
	})
}

func TestActivate(t *testing.T) {
	t.Parallel()

	t.Run("records actor and activation time", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seeded.Status = subscription.FulfillmentPendingStart
		seeded.ProvisioningStatus = subscription.ProvisioningPending
		seed(t, store, seeded)

		updated, err := svc.Activate(context.Background(), seeded.ID, "operator@example.com")
		require.NoError(t, err)
		assert.Equal(t, subscription.FulfillmentSubscribed, updated.Status)
		assert.Equal(t, subscription.ProvisioningPending, updated.ProvisioningStatus, "activation does not touch the provisioning state")
		assert.Equal(t, "operator@example.com", updated.ActivatedBy)
		require.NotNil(t, updated.ActivatedAt)
		assert.Equal(t, testTime, *updated.ActivatedAt)
		assert.Nil(t, updated.UpdatedAt)
	})

	t.Run("empty actor falls back to the default activator", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seed(t, store, seeded)

		updated, err := svc.Activate(context.Background(), seeded.ID, "")
		require.NoError(t, err)
		assert.Equal(t, subscription.DefaultActivator, updated.ActivatedBy)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(subscription.NewMemoryStore(), newTestCatalog())
		_, err := svc.Activate(context.Background(), uuid.New(), "x")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})
}

// duplicateRowStore simulates a storage-layer fault where more than one row
// shares a subscription id.
type duplicateRowStore struct {
	subscription.Store
	count int64
}

func (s *duplicateRowStore) Count(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.count, nil
}

func TestExists(t *testing.T) {
	t.Parallel()

	t.Run("reports presence", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := newTestService(store, newTestCatalog())

		seeded := subscribedSucceeded("alice@example.com")
		seed(t, store, seeded)

		exists, err := svc.Exists(context.Background(), seeded.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = svc.Exists(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("duplicate rows surface as a storage fault", func(t *testing.T) {
		t.Parallel()

		store := &duplicateRowStore{Store: subscription.NewMemoryStore(), count: 2}
		svc := newTestService(store, newTestCatalog())

		exists, err := svc.Exists(context.Background(), uuid.New())
		assert.ErrorIs(t, err, subscription.ErrDuplicateResource)
		assert.False(t, exists)
	})
}

func TestGetAll(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	catalog := newTestCatalog()
	svc := newTestService(store, catalog)

	alice := subscribedSucceeded("Alice@Example.com")
	bob := subscribedSucceeded("bob@example.com")
	bob.Status = subscription.FulfillmentUnsubscribed
	seed(t, store, alice)
	seed(t, store, bob)

	catalog.credentials[alice.ID] = subscription.APICredential{
		PrimaryKey: "pk", SecondaryKey: "sk", BaseURL: "https://api.example.com",
	}

	t.Run("no filter returns everything enriched", func(t *testing.T) {
		subs, err := svc.GetAll(context.Background(), subscription.Filter{})
		require.NoError(t, err)
		require.Len(t, subs, 2)
		for _, sub := range subs {
			assert.Equal(t, "offer1", sub.OfferName)
			assert.Equal(t, "basic", sub.PlanName)
		}
	})

	t.Run("owner filter is case-insensitive", func(t *testing.T) {
		subs, err := svc.GetAll(context.Background(), subscription.Filter{Owner: "alice@example.COM"})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, alice.ID, subs[0].ID)
		assert.Equal(t, "pk", subs[0].PrimaryKey)
		assert.Equal(t, "https://api.example.com", subs[0].BaseURL)
	})

	t.Run("status filter", func(t *testing.T) {
		subs, err := svc.GetAll(context.Background(), subscription.Filter{
			Statuses: []subscription.FulfillmentState{subscription.FulfillmentUnsubscribed},
		})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, bob.ID, subs[0].ID)
	})
}

func TestGetAllActiveByOffer(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	svc := newTestService(store, newTestCatalog())

	seeded := subscribedSucceeded("alice@example.com")
	seed(t, store, seeded)

	subs, err := svc.GetAllActiveByOffer(context.Background(), "offer1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, seeded.ID, subs[0].ID)

	_, err = svc.GetAllActiveByOffer(context.Background(), "nope")
	assert.ErrorIs(t, err, subscription.ErrOfferNotFound)
}

func TestGet(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	svc := newTestService(store, newTestCatalog())

	seeded := subscribedSucceeded("alice@example.com")
	seed(t, store, seeded)

	sub, err := svc.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "offer1", sub.OfferName)
	assert.Equal(t, "basic", sub.PlanName)
	assert.Empty(t, sub.PrimaryKey, "no credentials provisioned yet")

	_, err = svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestWarnings(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	svc := newTestService(store, newTestCatalog())

	healthy := subscribedSucceeded("alice@example.com")
	seed(t, store, healthy)

	failedAt := testTime.Add(-2 * time.Hour)
	failed := subscribedSucceeded("bob@example.com")
	failed.ProvisioningStatus = subscription.ProvisioningFailed
	failed.LastException = "deployment quota exceeded"
	failed.UpdatedAt = &failedAt
	seed(t, store, failed)

	warned := subscribedSucceeded("carol@example.com")
	warned.ProvisioningStatus = subscription.ProvisioningWarning
	seed(t, store, warned)

	t.Run("all subscriptions", func(t *testing.T) {
		warnings, err := svc.Warnings(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, warnings, 2)
	})

	t.Run("single subscription", func(t *testing.T) {
		warnings, err := svc.Warnings(context.Background(), &failed.ID)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, failed.ID, warnings[0].SubscriptionID)
		assert.Contains(t, warnings[0].Message, string(subscription.ProvisioningFailed))
		assert.Contains(t, warnings[0].Message, failedAt.Format(time.RFC3339))
		assert.Contains(t, warnings[0].Details, "deployment quota exceeded")
	})

	t.Run("healthy subscription yields none", func(t *testing.T) {
		warnings, err := svc.Warnings(context.Background(), &healthy.ID)
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})
}
