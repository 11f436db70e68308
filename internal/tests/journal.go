package tests

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunJournalSuite exercises the behavior every ISubmissionJournal backend shares.
// newJournal must return an empty journal; the suite closes it.
func RunJournalSuite(t *testing.T, newJournal func(t *testing.T) persistence.ISubmissionJournal) {
	account := types.AccountId{0xd1, 0x72}
	other := types.AccountId{0xd7, 0x56}

	t.Run("SaveAndLoad", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		record := persistence.NewSubmissionRecord(account, 5, "classic", "sudo", "0xc101")
		require.NoError(t, j.SaveSubmission(record))

		loaded, err := j.LoadSubmission(record.ID)
		require.NoError(t, err)
		assert.Equal(t, record, loaded)

		byNonce, err := j.LoadSubmissionByNonce(account, 5)
		require.NoError(t, err)
		require.NotNil(t, byNonce)
		assert.Equal(t, record.ID, byNonce.ID)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		loaded, err := j.LoadSubmission("missing")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		byNonce, err := j.LoadSubmissionByNonce(account, 99)
		require.NoError(t, err)
		assert.Nil(t, byNonce)
	})

	t.Run("SaveNil", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		err := j.SaveSubmission(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil SubmissionRecord")
	})

	t.Run("NonceReuseRejected", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		first := persistence.NewSubmissionRecord(account, 7, "classic", "sudo", "0x01")
		require.NoError(t, j.SaveSubmission(first))

		second := persistence.NewSubmissionRecord(account, 7, "classic", "sudo", "0x02")
		err := j.SaveSubmission(second)
		require.ErrorIs(t, err, persistence.ErrNonceAlreadyUsed)

		// same nonce, different account
		require.NoError(t, j.SaveSubmission(persistence.NewSubmissionRecord(other, 7, "classic", "sudo", "0x03")))

		// saving the same record again is an overwrite, not a reuse
		require.NoError(t, j.SaveSubmission(first))
	})

	t.Run("ReleasedNonceCanBeReused", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		first := persistence.NewSubmissionRecord(account, 8, "tagged", "sudo", "0x01")
		require.NoError(t, j.SaveSubmission(first))
		require.NoError(t, j.UpdateStatus(first.ID, persistence.StatusRejected))

		second := persistence.NewSubmissionRecord(account, 8, "tagged", "sudo", "0x02")
		require.NoError(t, j.SaveSubmission(second))

		holder, err := j.LoadSubmissionByNonce(account, 8)
		require.NoError(t, err)
		require.NotNil(t, holder)
		assert.Equal(t, second.ID, holder.ID)

		// the rejected record is still kept for the history
		old, err := j.LoadSubmission(first.ID)
		require.NoError(t, err)
		require.NotNil(t, old)
		assert.Equal(t, persistence.StatusRejected, old.Status)
	})

	t.Run("SetSubscriptionAndUpdateStatus", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		record := persistence.NewSubmissionRecord(account, 9, "classic", "put_code", "0x01")
		require.NoError(t, j.SaveSubmission(record))

		require.NoError(t, j.SetSubscription(record.ID, 42))
		loaded, err := j.LoadSubmission(record.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Submitted)
		assert.Equal(t, types.SubscriptionId(42), loaded.SubscriptionId)
		assert.Equal(t, persistence.StatusSubmitted, loaded.Status)

		require.NoError(t, j.UpdateStatus(record.ID, types.TransactionStatusFinalized))
		loaded, err = j.LoadSubmission(record.ID)
		require.NoError(t, err)
		assert.Equal(t, types.TransactionStatusFinalized, loaded.Status)
		assert.GreaterOrEqual(t, loaded.UpdatedAt, record.UpdatedAt)

		require.ErrorIs(t, j.UpdateStatus("missing", types.TransactionStatusReady), persistence.ErrSubmissionNotFound)
		require.ErrorIs(t, j.SetSubscription("missing", 1), persistence.ErrSubmissionNotFound)
	})

	t.Run("ListSubmissions", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		empty, err := j.ListSubmissions()
		require.NoError(t, err)
		assert.Empty(t, empty)

		var ids []string
		for nonce := 0; nonce < 5; nonce++ {
			r := persistence.NewSubmissionRecord(account, types.SequenceNumber(nonce), "classic", "sudo", "0x01")
			r.CreatedAt = int64(1000 + nonce)
			require.NoError(t, j.SaveSubmission(r))
			ids = append(ids, r.ID)
		}

		records, err := j.ListSubmissions()
		require.NoError(t, err)
		require.Len(t, records, 5)
		for i, r := range records {
			assert.Equal(t, ids[i], r.ID)
			assert.Equal(t, types.SequenceNumber(i), r.Nonce)
		}
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		record := persistence.NewSubmissionRecord(account, 11, "classic", "sudo", "0x01")
		require.NoError(t, j.SaveSubmission(record))
		record.Status = types.TransactionStatusInvalid

		loaded, err := j.LoadSubmission(record.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.StatusBuilt, loaded.Status)

		loaded.Status = types.TransactionStatusDropped
		again, err := j.LoadSubmission(record.ID)
		require.NoError(t, err)
		assert.Equal(t, persistence.StatusBuilt, again.Status)
	})

	t.Run("ConcurrentNonceClaims", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := persistence.NewSubmissionRecord(account, 12, "classic", "sudo", fmt.Sprintf("0x%02x", i))
				if err := j.SaveSubmission(r); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, accepted)
	})

	t.Run("Close", func(t *testing.T) {
		j := newJournal(t)
		require.NoError(t, j.HealthCheck())

		require.NoError(t, j.Close())
		require.NoError(t, j.Close(), "close is idempotent")

		require.ErrorIs(t, j.HealthCheck(), persistence.ErrClosed)
		require.ErrorIs(t, j.SaveSubmission(persistence.NewSubmissionRecord(account, 1, "classic", "sudo", "0x")), persistence.ErrClosed)
		_, err := j.LoadSubmission("x")
		require.ErrorIs(t, err, persistence.ErrClosed)
		_, err = j.ListSubmissions()
		require.ErrorIs(t, err, persistence.ErrClosed)
		require.ErrorIs(t, j.UpdateStatus("x", types.TransactionStatusReady), persistence.ErrClosed)
	})
}
