package logger

import "log/slog"

// Error records a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
// If id is nil, it returns an empty Attr.
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// OperationID records the operation correlation identifier under the key "operation_id".
// If id is nil, it returns an empty Attr.
func OperationID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("operation_id", id)
}

// AgentID records the agent identifier under the key "agent_id".
// If id is nil, it returns an empty Attr.
func AgentID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("agent_id", id)
}

// OfferName records an offer name under the key "offer".
func OfferName(name string) slog.Attr {
	return slog.String("offer", name)
}

// PlanName records a plan name under the key "plan".
func PlanName(name string) slog.Attr {
	return slog.String("plan", name)
}
