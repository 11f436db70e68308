package memory

import (
	"sync"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MemoryJournal is an in-memory implementation of ISubmissionJournal.
//
// All records are lost when the process exits, so the nonce-reuse guard only covers
// a single run. Deep copies records to prevent external mutation.
type MemoryJournal struct {
	mu sync.RWMutex

	// id -> record
	records map[string]*persistence.SubmissionRecord

	// persistence.NonceKey -> id
	nonces map[string]string

	closed bool
}

func NewMemoryJournal(logger *zap.Logger) *MemoryJournal {
	logger.Sugar().Infow("Using in-memory submission journal, records are lost on exit")

	return &MemoryJournal{
		records: make(map[string]*persistence.SubmissionRecord),
		nonces:  make(map[string]string),
	}
}

func (m *MemoryJournal) SaveSubmission(record *persistence.SubmissionRecord) error {
	if record == nil {
		return errors.New("cannot save nil SubmissionRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	nonceKey := persistence.NonceKey(record.Account, record.Nonce)
	if existingId, ok := m.nonces[nonceKey]; ok && existingId != record.ID {
		if existing := m.records[existingId]; !existing.ReleasesNonce() {
			return errors.Wrapf(persistence.ErrNonceAlreadyUsed, "account %s nonce %d held by submission %s (%s)",
				record.Account, record.Nonce, existing.ID, existing.Status)
		}
	}

	m.records[record.ID] = record.Clone()
	m.nonces[nonceKey] = record.ID
	return nil
}

func (m *MemoryJournal) LoadSubmission(id string) (*persistence.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	return m.records[id].Clone(), nil
}

func (m *MemoryJournal) LoadSubmissionByNonce(account types.AccountId, nonce types.SequenceNumber) (*persistence.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	id, ok := m.nonces[persistence.NonceKey(account.Hex(), nonce)]
	if !ok {
		return nil, nil
	}
	return m.records[id].Clone(), nil
}

func (m *MemoryJournal) ListSubmissions() ([]*persistence.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*persistence.SubmissionRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r.Clone())
	}
	persistence.SortSubmissions(records)
	return records, nil
}

func (m *MemoryJournal) SetSubscription(id string, subscriptionId types.SubscriptionId) error {
	return m.update(id, func(r *persistence.SubmissionRecord) {
		r.SubscriptionId = subscriptionId
		r.Submitted = true
		r.Status = persistence.StatusSubmitted
	})
}

func (m *MemoryJournal) UpdateStatus(id string, status types.TransactionStatus) error {
	return m.update(id, func(r *persistence.SubmissionRecord) {
		r.Status = status
	})
}

func (m *MemoryJournal) update(id string, fn func(*persistence.SubmissionRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	r, ok := m.records[id]
	if !ok {
		return errors.Wrapf(persistence.ErrSubmissionNotFound, "id %s", id)
	}
	fn(r)
	r.Touch()
	return nil
}

// Close is idempotent
func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *MemoryJournal) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
