package subscription

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")

	// ErrDuplicateResource signals more than one row for an identifier that
	// must be unique. This is a storage-layer fault, not a user error.
	ErrDuplicateResource = errors.New("duplicate rows for a unique subscription identifier")

	ErrPayloadNotProvided    = errors.New("subscription payload not provided")
	ErrParameterNotProvided  = errors.New("required offer parameter not provided or type mismatch")
	ErrPlanAndQuantityChange = errors.New("cannot update plan and quantity at the same time")

	ErrOfferNotFound      = errors.New("offer not found")
	ErrPlanNotFound       = errors.New("plan not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrCredentialNotFound = errors.New("api subscription credential not found")

	ErrInvalidToken = errors.New("invalid landing page token")
)

// NotReadyError reports a lifecycle action denied by the transition table.
// It carries the action, the observed states and, when the denial concerns a
// stored row, the subscription id, so callers can explain the denial precisely.
type NotReadyError struct {
	Action            Action
	SubscriptionID    uuid.UUID // uuid.Nil when no stored row is involved
	FulfillmentState  FulfillmentState
	ProvisioningState ProvisioningState
}

func (e *NotReadyError) Error() string {
	if e.SubscriptionID != uuid.Nil {
		return fmt.Sprintf("cannot %s subscription %s in fulfillment state %q and provisioning state %q",
			e.Action.verb(), e.SubscriptionID, e.FulfillmentState, e.ProvisioningState)
	}
	return fmt.Sprintf("cannot %s subscription in fulfillment state %q and provisioning state %q",
		e.Action.verb(), e.FulfillmentState, e.ProvisioningState)
}

// IsNotReadyError reports whether err is a guard denial.
func IsNotReadyError(err error) bool {
	var e *NotReadyError
	return errors.As(err, &e)
}
