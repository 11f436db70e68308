package storageKey

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/codec"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
)

// StorageKeyCodec reproduces the node's key derivation for the account nonce map:
// twox128(prefix ++ encode(accountId)). A wrong prefix is not an error on the node
// side, it just reads an empty slot, so the prefix is pinned per node build.
type StorageKeyCodec struct {
	prefix []byte
}

func NewStorageKeyCodec(prefix string) *StorageKeyCodec {
	if prefix == "" {
		prefix = config.DefaultNonceStoragePrefix
	}
	return &StorageKeyCodec{prefix: []byte(prefix)}
}

// SequenceNumberKey returns the 16-byte storage key of the account's nonce
func (c *StorageKeyCodec) SequenceNumberKey(accountId types.AccountId) []byte {
	// an AccountId encodes as its raw 32 bytes
	raw := make([]byte, 0, len(c.prefix)+types.AccountIdLength)
	raw = append(raw, c.prefix...)
	raw = append(raw, accountId[:]...)
	return codec.Twox128(raw)
}

// SequenceNumberKeyHex is SequenceNumberKey in the 0x-hex form used as an RPC argument
func (c *StorageKeyCodec) SequenceNumberKeyHex(accountId types.AccountId) string {
	return hexutil.Encode(c.SequenceNumberKey(accountId))
}
