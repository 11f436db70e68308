package persistence

import (
	"testing"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalSubmissionRecord_RoundTrip(t *testing.T) {
	var account types.AccountId
	account[0] = 0xd1

	original := NewSubmissionRecord(account, 42, "tagged", "sudo", "0xc501")
	original.SubscriptionId = 9
	original.Submitted = true
	original.Status = types.TransactionStatusInBlock

	data, err := MarshalSubmissionRecord(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalSubmissionRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshalSubmissionRecord_NilInput(t *testing.T) {
	_, err := MarshalSubmissionRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil SubmissionRecord")
}

func TestUnmarshalSubmissionRecord_InvalidInput(t *testing.T) {
	_, err := UnmarshalSubmissionRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")

	_, err = UnmarshalSubmissionRecord([]byte(`{"nonce": "not a number"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")

	_, err = UnmarshalSubmissionRecord([]byte(`{"nonce": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestNewSubmissionRecord(t *testing.T) {
	a := NewSubmissionRecord(types.AccountId{}, 1, "classic", "sudo", "0x00")
	b := NewSubmissionRecord(types.AccountId{}, 1, "classic", "sudo", "0x00")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, StatusBuilt, a.Status)
	assert.False(t, a.Submitted)
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)
	assert.Equal(t, types.AccountId{}.Hex(), a.Account)
}

func TestSubmissionRecord_ReleasesNonce(t *testing.T) {
	cases := map[types.TransactionStatus]bool{
		StatusBuilt:                      false,
		StatusSubmitted:                  false,
		StatusRejected:                   true,
		types.TransactionStatusReady:     false,
		types.TransactionStatusInBlock:   false,
		types.TransactionStatusFinalized: false,
		types.TransactionStatusUsurped:   false,
		types.TransactionStatusDropped:   true,
		types.TransactionStatusInvalid:   true,
	}
	for status, expected := range cases {
		r := &SubmissionRecord{ID: "x", Status: status}
		assert.Equal(t, expected, r.ReleasesNonce(), status)
	}

	var nilRecord *SubmissionRecord
	assert.True(t, nilRecord.ReleasesNonce())
}

func TestNonceKey_SortsNumerically(t *testing.T) {
	assert.Less(t, NonceKey("0xab", 9), NonceKey("0xab", 10))
	assert.Equal(t, "0xab:00000000000000000300", NonceKey("0xab", 300))
}

func TestSortSubmissions(t *testing.T) {
	records := []*SubmissionRecord{
		{ID: "c", CreatedAt: 2, Nonce: 1},
		{ID: "b", CreatedAt: 1, Nonce: 5},
		{ID: "a", CreatedAt: 1, Nonce: 4},
	}
	SortSubmissions(records)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "c", records[2].ID)
}
