package subscription

import (
	"errors"

	"github.com/google/uuid"
)

// Action identifies a subscriber-facing lifecycle operation.
type Action string

const (
	ActionCreate      Action = "Create"
	ActionUpdate      Action = "Update"
	ActionUnsubscribe Action = "Unsubscribe"
	ActionSuspend     Action = "Suspend"
	ActionReinstate   Action = "Reinstate"
	ActionDeleteData  Action = "DeleteData"
	ActionActivate    Action = "Activate"
)

// verb returns the action as it reads in an error message.
func (a Action) verb() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionUnsubscribe:
		return "unsubscribe"
	case ActionSuspend:
		return "suspend"
	case ActionReinstate:
		return "reinstate"
	case ActionDeleteData:
		return "delete data of"
	case ActionActivate:
		return "activate"
	default:
		return string(a)
	}
}

// transition is one row of the lifecycle table: the states an action demands
// and the states it produces. Nil requirements accept any state; nil results
// leave the field unchanged. The flip of FulfillmentState to its terminal
// value (Unsubscribed, Suspended, ...) is driven by the external provisioning
// callback; this table only records the request.
type transition struct {
	requiresFulfillment  *FulfillmentState
	requiresProvisioning *ProvisioningState
	nextFulfillment      *FulfillmentState
	nextProvisioning     *ProvisioningState
	nextType             *ProvisioningType
}

func fulfillment(s FulfillmentState) *FulfillmentState { return &s }
func provisioning(s ProvisioningState) *ProvisioningState {
	return &s
}
func provisioningType(t ProvisioningType) *ProvisioningType { return &t }

// transitionTable drives every guard check and state change in the package.
// Adding an action or relaxing a precondition is a one-row edit here.
var transitionTable = map[Action]transition{
	ActionCreate: {
		nextFulfillment:  fulfillment(FulfillmentPendingStart),
		nextProvisioning: provisioning(ProvisioningPending),
		nextType:         provisioningType(TypeSubscribe),
	},
	ActionUpdate: {
		requiresFulfillment:  fulfillment(FulfillmentSubscribed),
		requiresProvisioning: provisioning(ProvisioningSucceeded),
		nextProvisioning:     provisioning(ProvisioningArmTemplatePending),
		nextType:             provisioningType(TypeUpdate),
	},
	ActionUnsubscribe: {
		requiresFulfillment:  fulfillment(FulfillmentSubscribed),
		requiresProvisioning: provisioning(ProvisioningSucceeded),
		nextProvisioning:     provisioning(ProvisioningArmTemplatePending),
		nextType:             provisioningType(TypeUnsubscribe),
	},
	ActionSuspend: {
		requiresFulfillment:  fulfillment(FulfillmentSubscribed),
		requiresProvisioning: provisioning(ProvisioningSucceeded),
		nextProvisioning:     provisioning(ProvisioningArmTemplatePending),
		nextType:             provisioningType(TypeSuspend),
	},
	ActionReinstate: {
		requiresFulfillment:  fulfillment(FulfillmentSuspended),
		requiresProvisioning: provisioning(ProvisioningSucceeded),
		nextProvisioning:     provisioning(ProvisioningArmTemplatePending),
		nextType:             provisioningType(TypeReinstate),
	},
	ActionDeleteData: {
		requiresFulfillment:  fulfillment(FulfillmentUnsubscribed),
		requiresProvisioning: provisioning(ProvisioningSucceeded),
		nextProvisioning:     provisioning(ProvisioningArmTemplatePending),
		nextType:             provisioningType(TypeDeleteData),
	},
	ActionActivate: {
		nextFulfillment: fulfillment(FulfillmentSubscribed),
	},
}

// Guard reports whether a subscription in the given states may perform the
// action. It returns a *NotReadyError naming the action and the unmet state;
// a denied action never silently no-ops.
func Guard(action Action, fulfillment FulfillmentState, provisioning ProvisioningState) error {
	t, ok := transitionTable[action]
	if !ok {
		return &NotReadyError{Action: action, FulfillmentState: fulfillment, ProvisioningState: provisioning}
	}
	if t.requiresFulfillment != nil && *t.requiresFulfillment != fulfillment {
		return &NotReadyError{Action: action, FulfillmentState: fulfillment, ProvisioningState: provisioning}
	}
	if t.requiresProvisioning != nil && *t.requiresProvisioning != provisioning {
		return &NotReadyError{Action: action, FulfillmentState: fulfillment, ProvisioningState: provisioning}
	}
	return nil
}

// guardFor runs Guard against a stored row and tags denials with its id.
func guardFor(sub *Subscription, action Action) error {
	if err := Guard(action, sub.Status, sub.ProvisioningStatus); err != nil {
		var notReady *NotReadyError
		if errors.As(err, &notReady) {
			notReady.SubscriptionID = sub.ID
		}
		return err
	}
	return nil
}

// apply checks the guard for the action and, on success, advances the
// subscription's state triple and stamps the operation correlation id.
// The subscription is not modified when the guard denies the action.
func apply(sub *Subscription, action Action, operationID *uuid.UUID) error {
	if err := guardFor(sub, action); err != nil {
		return err
	}
	t := transitionTable[action]
	if t.nextFulfillment != nil {
		sub.Status = *t.nextFulfillment
	}
	if t.nextProvisioning != nil {
		sub.ProvisioningStatus = *t.nextProvisioning
	}
	if t.nextType != nil {
		sub.ProvisioningType = *t.nextType
	}
	if operationID != nil {
		sub.OperationID = operationID
	}
	return nil
}
