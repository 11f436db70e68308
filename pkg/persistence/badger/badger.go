package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixSubmission  = "submission:"
	keyPrefixNonce       = "nonce:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerJournal is a durable ISubmissionJournal backed by Badger. Records survive
// restarts, so the nonce-reuse guard holds across runs.
type BadgerJournal struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool

	// saveMu serializes the check-then-write of the nonce index
	saveMu sync.Mutex
}

// NewBadgerJournal opens the journal at dataPath with SyncWrites enabled for
// durability and starts a background garbage collector.
func NewBadgerJournal(dataPath string, logger *zap.Logger) (*BadgerJournal, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bj := &BadgerJournal{
		db:     db,
		logger: logger,
	}

	if err := bj.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bj.gcCancel = cancel
	bj.gcWg.Add(1)
	go bj.runGC(ctx)

	logger.Sugar().Infow("Badger submission journal initialized", "path", absPath)

	return bj, nil
}

func (b *BadgerJournal) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerJournal) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func submissionKey(id string) []byte {
	return []byte(keyPrefixSubmission + id)
}

func nonceKey(account string, nonce types.SequenceNumber) []byte {
	return []byte(keyPrefixNonce + persistence.NonceKey(account, nonce))
}

// getValue copies the value at key; nil when the key does not exist
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getRecord(txn *badgerdb.Txn, id string) (*persistence.SubmissionRecord, error) {
	data, err := getValue(txn, submissionKey(id))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalSubmissionRecord(data)
}

func putRecord(txn *badgerdb.Txn, record *persistence.SubmissionRecord) error {
	data, err := persistence.MarshalSubmissionRecord(record)
	if err != nil {
		return err
	}
	return txn.Set(submissionKey(record.ID), data)
}

func (b *BadgerJournal) SaveSubmission(record *persistence.SubmissionRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil SubmissionRecord")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	nk := nonceKey(record.Account, record.Nonce)
	return b.db.Update(func(txn *badgerdb.Txn) error {
		existingId, err := getValue(txn, nk)
		if err != nil {
			return fmt.Errorf("failed to read nonce index: %w", err)
		}
		if existingId != nil && string(existingId) != record.ID {
			existing, err := getRecord(txn, string(existingId))
			if err != nil {
				return fmt.Errorf("failed to load submission %s: %w", string(existingId), err)
			}
			if !existing.ReleasesNonce() {
				return errors.Wrapf(persistence.ErrNonceAlreadyUsed, "account %s nonce %d held by submission %s (%s)",
					record.Account, record.Nonce, existing.ID, existing.Status)
			}
		}

		if err := putRecord(txn, record); err != nil {
			return err
		}
		return txn.Set(nk, []byte(record.ID))
	})
}

func (b *BadgerJournal) LoadSubmission(id string) (*persistence.SubmissionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var record *persistence.SubmissionRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load SubmissionRecord: %w", err)
	}
	return record, nil
}

func (b *BadgerJournal) LoadSubmissionByNonce(account types.AccountId, nonce types.SequenceNumber) (*persistence.SubmissionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var record *persistence.SubmissionRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		id, err := getValue(txn, nonceKey(account.Hex(), nonce))
		if err != nil || id == nil {
			return err
		}
		record, err = getRecord(txn, string(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load SubmissionRecord by nonce: %w", err)
	}
	return record, nil
}

func (b *BadgerJournal) ListSubmissions() ([]*persistence.SubmissionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	records := []*persistence.SubmissionRecord{}
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixSubmission)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalSubmissionRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal SubmissionRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list SubmissionRecords: %w", err)
	}

	persistence.SortSubmissions(records)
	return records, nil
}

func (b *BadgerJournal) SetSubscription(id string, subscriptionId types.SubscriptionId) error {
	return b.update(id, func(r *persistence.SubmissionRecord) {
		r.SubscriptionId = subscriptionId
		r.Submitted = true
		r.Status = persistence.StatusSubmitted
	})
}

func (b *BadgerJournal) UpdateStatus(id string, status types.TransactionStatus) error {
	return b.update(id, func(r *persistence.SubmissionRecord) {
		r.Status = status
	})
}

func (b *BadgerJournal) update(id string, fn func(*persistence.SubmissionRecord)) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if record == nil {
			return errors.Wrapf(persistence.ErrSubmissionNotFound, "id %s", id)
		}
		fn(record)
		record.Touch()
		return putRecord(txn, record)
	})
}

// Close shuts down the journal; idempotent
func (b *BadgerJournal) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger submission journal closed")
	return nil
}

// HealthCheck verifies the journal is operational
func (b *BadgerJournal) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
