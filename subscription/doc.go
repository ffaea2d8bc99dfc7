// Package subscription implements the lifecycle of a marketplace subscription:
// the state machine that guards every subscriber-facing action, the manager
// that performs the transactional writes those actions require, and the
// landing-page resolver that turns an inbound token into a subscription
// layout.
//
// A subscription binds a customer to a purchased plan of an offer (or, for
// the self-host path, to a product deployment). Its lifecycle is tracked on
// two axes: a customer-visible FulfillmentState and an internal
// ProvisioningState paired with the ProvisioningType that started the current
// provisioning cycle. Every mutating action is validated against the
// transition table in lifecycle.go before anything is written, and all
// multi-row writes (subscription + parameters + meter usage rows) happen
// inside a single Store transaction.
//
// The package depends on its collaborators only through the small lookup
// interfaces in lookups.go; offer, plan, product, agent, credential and meter
// catalogs are consumed as already-correct keyed reads. Persistence is
// abstracted behind Store; see the pgstore subpackage for the PostgreSQL
// implementation and NewMemoryStore for an in-memory one.
package subscription
