package chainQuery

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/storageKey"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transport"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	MethodGetBlockHash = "chain_getBlockHash"
	MethodGetStorage   = "state_getStorage"

	sequenceNumberLength = 8
)

var (
	ErrUnreachable       = errors.New("node unreachable")
	ErrMalformedResponse = errors.New("malformed node response")
)

// IRPCCaller is the request/response half of the transport
type IRPCCaller interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

var _ IRPCCaller = (*transport.Client)(nil)

type ChainQueryClient struct {
	caller   IRPCCaller
	keyCodec *storageKey.StorageKeyCodec
	logger   *zap.Logger
}

func NewChainQueryClient(caller IRPCCaller, keyCodec *storageKey.StorageKeyCodec, logger *zap.Logger) *ChainQueryClient {
	if keyCodec == nil {
		keyCodec = storageKey.NewStorageKeyCodec("")
	}
	return &ChainQueryClient{
		caller:   caller,
		keyCodec: keyCodec,
		logger:   logger,
	}
}

// GenesisHash returns the hash of block 0
func (c *ChainQueryClient) GenesisHash(ctx context.Context) (types.ChainHash, error) {
	var hash types.ChainHash

	raw, err := c.call(ctx, MethodGetBlockHash, []interface{}{0})
	if err != nil {
		return hash, err
	}

	var hashHex *string
	if err := json.Unmarshal(raw, &hashHex); err != nil {
		return hash, errors.Wrapf(ErrMalformedResponse, "genesis hash is not a string: %s", string(raw))
	}
	if hashHex == nil {
		return hash, errors.Wrap(ErrMalformedResponse, "node has no block 0")
	}

	hash, err = types.ChainHashFromHex(*hashHex)
	if err != nil {
		return hash, errors.Wrapf(ErrMalformedResponse, "%v", err)
	}

	c.logger.Sugar().Debugw("Fetched genesis hash", "genesisHash", hash.Hex())
	return hash, nil
}

// AccountSequenceNumber reads the account's nonce from storage. An account that has
// never transacted has no entry, which is reported as 0.
func (c *ChainQueryClient) AccountSequenceNumber(ctx context.Context, accountId types.AccountId) (types.SequenceNumber, error) {
	key := c.keyCodec.SequenceNumberKeyHex(accountId)

	raw, err := c.call(ctx, MethodGetStorage, []interface{}{key})
	if err != nil {
		return 0, err
	}

	var valueHex *string
	if err := json.Unmarshal(raw, &valueHex); err != nil {
		return 0, errors.Wrapf(ErrMalformedResponse, "storage value is not a string: %s", string(raw))
	}
	if valueHex == nil {
		c.logger.Sugar().Debugw("No nonce stored for account, using 0", "account", accountId.Hex())
		return 0, nil
	}

	value, err := hexutil.Decode(*valueHex)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedResponse, "storage value %q is not hex: %v", *valueHex, err)
	}
	if len(value) != sequenceNumberLength {
		return 0, errors.Wrapf(ErrMalformedResponse, "storage value must be %d bytes, got %d", sequenceNumberLength, len(value))
	}

	nonce := types.SequenceNumber(binary.LittleEndian.Uint64(value))
	c.logger.Sugar().Debugw("Fetched account nonce",
		"account", accountId.Hex(),
		"storageKey", key,
		"nonce", nonce,
	)
	return nonce, nil
}

func (c *ChainQueryClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	c.logger.Sugar().Debugw("Querying node", "method", method, "params", params)

	var raw json.RawMessage
	err := c.caller.Call(ctx, method, params, &raw)
	if err == nil {
		if len(raw) == 0 {
			return nil, errors.Wrapf(ErrMalformedResponse, "%s returned an empty result", method)
		}
		return raw, nil
	}

	var rpcErr *transport.RPCError
	if errors.As(err, &rpcErr) {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s: %s", method, rpcErr.Error())
	}
	return nil, errors.Wrapf(ErrUnreachable, "%s: %v", method, err)
}
