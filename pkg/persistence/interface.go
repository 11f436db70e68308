package persistence

import (
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/pkg/errors"
)

var (
	// ErrNonceAlreadyUsed is returned when a live submission already holds the (account, nonce) pair
	ErrNonceAlreadyUsed = errors.New("nonce already used by a recorded submission")

	ErrSubmissionNotFound = errors.New("submission not found")
	ErrClosed             = errors.New("persistence layer is closed")
)

// ISubmissionJournal records every extrinsic this client builds and follows it through
// submission and its lifecycle. It doubles as the guard against reusing a nonce.
// All implementations must be thread-safe.
type ISubmissionJournal interface {
	// SaveSubmission stores a new record. It fails with ErrNonceAlreadyUsed when another
	// record for the same account and nonce exists and has not released the nonce
	// (see SubmissionRecord.ReleasesNonce).
	SaveSubmission(record *SubmissionRecord) error

	// LoadSubmission returns nil if the id is unknown, error only on storage failure.
	LoadSubmission(id string) (*SubmissionRecord, error)

	// LoadSubmissionByNonce returns the record currently holding (account, nonce), or nil.
	LoadSubmissionByNonce(account types.AccountId, nonce types.SequenceNumber) (*SubmissionRecord, error)

	// ListSubmissions returns all records ordered by creation time, then nonce.
	ListSubmissions() ([]*SubmissionRecord, error)

	// SetSubscription records the subscription id the node assigned on submit.
	// Returns ErrSubmissionNotFound for an unknown id.
	SetSubscription(id string, subscriptionId types.SubscriptionId) error

	// UpdateStatus records the latest lifecycle status.
	// Returns ErrSubmissionNotFound for an unknown id.
	UpdateStatus(id string, status types.TransactionStatus) error

	// Close is idempotent. After Close every other operation returns ErrClosed.
	Close() error

	HealthCheck() error
}
