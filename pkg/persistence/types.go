package persistence

import (
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/google/uuid"
)

// Journal-only statuses, recorded before the node reports anything
const (
	StatusBuilt     types.TransactionStatus = "built"
	StatusSubmitted types.TransactionStatus = "submitted"
	StatusRejected  types.TransactionStatus = "rejected"

	// StatusStale marks an unsubmitted record whose nonce the chain has since consumed
	StatusStale types.TransactionStatus = "stale"
)

// SubmissionRecord is one built extrinsic and what became of it
type SubmissionRecord struct {
	ID string `json:"id"`

	// Account is the 0x-hex account id of the sender
	Account string `json:"account"`

	Nonce    types.SequenceNumber `json:"nonce"`
	Protocol string               `json:"protocol"`
	Call     string               `json:"call"`

	ExtrinsicHex string `json:"extrinsicHex"`

	// SubscriptionId is only meaningful once Submitted is set
	SubscriptionId types.SubscriptionId `json:"subscriptionId"`
	Submitted      bool                 `json:"submitted"`

	Status types.TransactionStatus `json:"status"`

	// CreatedAt and UpdatedAt are unix nanoseconds
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// NewSubmissionRecord creates a record in the built state with a fresh id
func NewSubmissionRecord(
	account types.AccountId,
	nonce types.SequenceNumber,
	protocol string,
	call string,
	extrinsicHex string,
) *SubmissionRecord {
	now := time.Now().UnixNano()
	return &SubmissionRecord{
		ID:           uuid.New().String(),
		Account:      account.Hex(),
		Nonce:        nonce,
		Protocol:     protocol,
		Call:         call,
		ExtrinsicHex: extrinsicHex,
		Status:       StatusBuilt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ReleasesNonce reports whether the node is known not to have consumed the nonce, so
// a new extrinsic may be built with it.
func (r *SubmissionRecord) ReleasesNonce() bool {
	if r == nil {
		return true
	}
	switch r.Status {
	case StatusRejected, types.TransactionStatusDropped, types.TransactionStatusInvalid:
		return true
	default:
		return false
	}
}

// Clone returns a copy that shares nothing with r
func (r *SubmissionRecord) Clone() *SubmissionRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Touch sets UpdatedAt to now
func (r *SubmissionRecord) Touch() {
	r.UpdatedAt = time.Now().UnixNano()
}
