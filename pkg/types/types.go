package types

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	AccountIdLength = 32
	ChainHashLength = 32
	SignatureLength = 64
)

// AccountId is the 32-byte ed25519 public key identifying an account on the ledger
type AccountId [AccountIdLength]byte

func (a AccountId) Hex() string {
	return hexutil.Encode(a[:])
}

func (a AccountId) String() string {
	return a.Hex()
}

func (a AccountId) Bytes() []byte {
	return append([]byte{}, a[:]...)
}

// AccountIdFromBytes copies a 32-byte slice into an AccountId
func AccountIdFromBytes(b []byte) (AccountId, error) {
	var id AccountId
	if len(b) != AccountIdLength {
		return id, fmt.Errorf("account id must be %d bytes, got %d", AccountIdLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ChainHash identifies a block. Only the genesis hash is used by this client.
type ChainHash [ChainHashLength]byte

func (h ChainHash) Hex() string {
	return hexutil.Encode(h[:])
}

func (h ChainHash) String() string {
	return h.Hex()
}

// ChainHashFromHex parses a 0x-prefixed 32-byte hex string
func ChainHashFromHex(s string) (ChainHash, error) {
	var h ChainHash
	b, err := hexutil.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid chain hash hex %q: %w", s, err)
	}
	if len(b) != ChainHashLength {
		return h, fmt.Errorf("chain hash must be %d bytes, got %d", ChainHashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Signature is a raw ed25519 signature
type Signature [SignatureLength]byte

func (s Signature) Hex() string {
	return hexutil.Encode(s[:])
}

// SequenceNumber is the per-account nonce (the node's Index type, u64)
type SequenceNumber uint64

// SubscriptionId is the handle returned by author_submitAndWatchExtrinsic
type SubscriptionId uint64

func (s SubscriptionId) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// UnmarshalJSON accepts a JSON number, or a decimal string for nodes that quote ids.
func (s *SubscriptionId) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var str string
		if strErr := json.Unmarshal(data, &str); strErr != nil {
			return fmt.Errorf("subscription id is neither a number nor a string: %s", string(data))
		}
		n = json.Number(str)
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("subscription id %q is not an unsigned integer: %w", n.String(), err)
	}
	*s = SubscriptionId(v)
	return nil
}
