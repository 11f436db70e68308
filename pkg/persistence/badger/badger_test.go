package badger

import (
	"testing"

	"github.com/Layr-Labs/extrinsic-submitter-go/internal/tests"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/logger"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T, dir string) *BadgerJournal {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bj, err := NewBadgerJournal(dir, testLogger)
	require.NoError(t, err)
	return bj
}

func TestBadgerJournal(t *testing.T) {
	tests.RunJournalSuite(t, func(t *testing.T) persistence.ISubmissionJournal {
		return newTestJournal(t, t.TempDir())
	})
}

func TestBadgerJournal_SurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()
	account := types.AccountId{0x01}

	bj := newTestJournal(t, tmpDir)
	record := persistence.NewSubmissionRecord(account, 3, "classic", "sudo", "0xc101")
	require.NoError(t, bj.SaveSubmission(record))
	require.NoError(t, bj.SetSubscription(record.ID, 77))
	require.NoError(t, bj.Close())

	reopened := newTestJournal(t, tmpDir)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.LoadSubmission(record.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, types.SubscriptionId(77), loaded.SubscriptionId)

	// the nonce is still held after the restart
	err = reopened.SaveSubmission(persistence.NewSubmissionRecord(account, 3, "classic", "sudo", "0xc102"))
	require.ErrorIs(t, err, persistence.ErrNonceAlreadyUsed)
}

func TestBadgerJournal_SchemaMismatch(t *testing.T) {
	tmpDir := t.TempDir()

	opts := badgerdb.DefaultOptions(tmpDir)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, db.Close())

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	_, err = NewBadgerJournal(tmpDir, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestBadgerJournal_SkipsCorruptRecords(t *testing.T) {
	bj := newTestJournal(t, t.TempDir())
	defer func() { _ = bj.Close() }()

	require.NoError(t, bj.SaveSubmission(persistence.NewSubmissionRecord(types.AccountId{}, 1, "classic", "sudo", "0x")))
	require.NoError(t, bj.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(submissionKey("corrupt"), []byte("{not json"))
	}))

	records, err := bj.ListSubmissions()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
