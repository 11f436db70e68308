package types

import "encoding/json"

// TransactionStatus is the lifecycle state reported by the node for a watched extrinsic
type TransactionStatus string

const (
	TransactionStatusFuture          TransactionStatus = "future"
	TransactionStatusReady           TransactionStatus = "ready"
	TransactionStatusBroadcast       TransactionStatus = "broadcast"
	TransactionStatusInBlock         TransactionStatus = "inBlock"
	TransactionStatusRetracted       TransactionStatus = "retracted"
	TransactionStatusFinalityTimeout TransactionStatus = "finalityTimeout"
	TransactionStatusFinalized       TransactionStatus = "finalized"
	TransactionStatusUsurped         TransactionStatus = "usurped"
	TransactionStatusDropped         TransactionStatus = "dropped"
	TransactionStatusInvalid         TransactionStatus = "invalid"
)

// IsTerminal reports whether no further updates will follow this status
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusFinalized,
		TransactionStatusUsurped,
		TransactionStatusDropped,
		TransactionStatusInvalid,
		TransactionStatusFinalityTimeout:
		return true
	default:
		return false
	}
}

// NotificationEvent is one parsed lifecycle update for a subscription
type NotificationEvent struct {
	SubscriptionId SubscriptionId    `json:"subscriptionId"`
	Method         string            `json:"method"`
	Status         TransactionStatus `json:"status"`

	// BlockHash is set for inBlock, retracted, finalized, finalityTimeout and usurped
	// (for usurped it carries the replacing extrinsic hash).
	BlockHash string `json:"blockHash,omitempty"`

	// Peers is set for broadcast
	Peers []string `json:"peers,omitempty"`

	// Raw is the untouched result payload, kept for statuses this client does not model.
	Raw json.RawMessage `json:"raw,omitempty"`
}
