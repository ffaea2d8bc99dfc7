// Package marketkit is a marketplace subscription lifecycle engine.
//
// It tracks a subscription across two axes: the customer-visible fulfillment
// state (pending start, subscribed, suspended, unsubscribed) and the state of
// the infrastructure operation currently in flight. Every lifecycle action is
// validated against a single transition table before anything is written, and
// the rows an action touches commit in one transaction.
//
// The subscription package holds the engine itself: the transition table, the
// lifecycle service, the landing-page token resolver and an in-memory store
// for tests. subscription/pgstore persists subscriptions in PostgreSQL.
//
// Basic usage:
//
//	store := pgstore.New(pool)
//	svc := subscription.NewService(store, lookups, gateway,
//		subscription.WithLogger(log),
//	)
//
//	sub, err := svc.Create(ctx, &subscription.Subscription{
//		ID:        purchasedID,
//		Name:      "acme-prod",
//		OfferName: "offer1",
//		PlanName:  "basic",
//		Owner:     "alice@example.com",
//	})
package marketkit
