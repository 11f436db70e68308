package persistence

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
)

// MarshalSubmissionRecord serializes a SubmissionRecord to JSON bytes.
func MarshalSubmissionRecord(r *SubmissionRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil SubmissionRecord")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SubmissionRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalSubmissionRecord deserializes a SubmissionRecord from JSON bytes.
func UnmarshalSubmissionRecord(data []byte) (*SubmissionRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r SubmissionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to SubmissionRecord: %w", err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("SubmissionRecord has no id")
	}

	return &r, nil
}

// NonceKey is the (account, nonce) index entry shared by every backend. The nonce is
// zero-padded so that keys sort numerically.
func NonceKey(account string, nonce types.SequenceNumber) string {
	return fmt.Sprintf("%s:%020d", account, uint64(nonce))
}

// SortSubmissions orders records by creation time, then nonce
func SortSubmissions(records []*SubmissionRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].Nonce < records[j].Nonce
	})
}
