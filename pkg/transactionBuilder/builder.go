// Package transactionBuilder encodes calls, signs them and assembles the signed
// extrinsic in the wire format of the configured node generation.
package transactionBuilder

import (
	"bytes"
	"fmt"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/codec"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/keystore"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BuildResult carries the intermediate artifacts of one build
type BuildResult struct {
	Extrinsic *SignedExtrinsic

	// Payload is the full signing payload
	Payload []byte

	// SigningInput is what was actually signed: Payload, or its blake2b-256 digest
	// when the protocol hashes payloads of that length.
	SigningInput []byte

	Encoded []byte
	Hex     string
}

type Builder struct {
	params   config.ProtocolParams
	strategy IProtocolStrategy
	logger   *zap.Logger
}

func NewBuilder(params config.ProtocolParams, logger *zap.Logger) (*Builder, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol params: %w", err)
	}
	strategy, err := NewProtocolStrategy(params)
	if err != nil {
		return nil, err
	}
	return &Builder{
		params:   params,
		strategy: strategy,
		logger:   logger,
	}, nil
}

func (b *Builder) Params() config.ProtocolParams {
	return b.params
}

// BuildTransaction returns the 0x-prefixed hex of the signed extrinsic, ready for
// author_submitAndWatchExtrinsic.
func (b *Builder) BuildTransaction(
	kp *keystore.Keypair,
	sender types.AccountId,
	call CallPayload,
	nonce types.SequenceNumber,
	genesisHash types.ChainHash,
) (string, error) {
	res, err := b.Build(kp, sender, call, nonce, genesisHash)
	if err != nil {
		return "", err
	}
	return res.Hex, nil
}

// Build signs call for sender and assembles the extrinsic. The signature is verified
// against sender before returning, so a keypair that does not belong to sender fails
// with keystore.ErrInvalidKeyMaterial.
func (b *Builder) Build(
	kp *keystore.Keypair,
	sender types.AccountId,
	call CallPayload,
	nonce types.SequenceNumber,
	genesisHash types.ChainHash,
) (*BuildResult, error) {
	if kp == nil {
		return nil, errors.Wrap(keystore.ErrInvalidKeyMaterial, "keypair is nil")
	}

	callBytes, err := EncodeCall(call, b.params.CallIndices)
	if err != nil {
		return nil, err
	}

	payload := &SigningPayload{
		Nonce:       nonce,
		Call:        callBytes,
		Era:         codec.ImmortalEra,
		GenesisHash: genesisHash,
	}
	payloadBytes, err := payload.Encode(b.strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing payload: %w", err)
	}

	signingInput := b.strategy.SigningInput(payloadBytes)

	sig, err := kp.Sign(signingInput)
	if err != nil {
		return nil, err
	}
	if !keystore.Verify(sender, signingInput, sig) {
		return nil, errors.Wrapf(keystore.ErrInvalidKeyMaterial, "signature does not verify for sender %s", sender.Hex())
	}

	extrinsic := &SignedExtrinsic{
		ExtrinsicVersion: b.params.ExtrinsicVersion,
		Signer:           codec.NewAddressFromAccountId(sender),
		Signature:        sig,
		Nonce:            nonce,
		Era:              codec.ImmortalEra,
		Call:             call,
	}
	if b.strategy.Version() == config.ProtocolVersionTagged {
		tag := b.params.PayloadFormatTag
		extrinsic.FormatTag = &tag
	}

	encoded, err := extrinsic.encode(b.strategy, callBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extrinsic: %w", err)
	}

	b.logger.Sugar().Debugw("Built signed extrinsic",
		"call", call.CallName(),
		"sender", sender.Hex(),
		"nonce", nonce,
		"protocol", b.strategy.Version(),
		"payloadLength", len(payloadBytes),
		"hashedPayload", len(signingInput) != len(payloadBytes),
		"length", len(encoded),
	)

	return &BuildResult{
		Extrinsic:    extrinsic,
		Payload:      payloadBytes,
		SigningInput: signingInput,
		Encoded:      encoded,
		Hex:          hexutil.Encode(encoded),
	}, nil
}

// DecodeSignedExtrinsicHex parses the 0x-prefixed form produced by BuildTransaction
func (b *Builder) DecodeSignedExtrinsicHex(s string) (*SignedExtrinsic, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid extrinsic hex: %w", err)
	}
	return b.DecodeSignedExtrinsic(raw)
}

// DecodeSignedExtrinsic reverses the encoding done by Build. The signature is not
// checked here.
func (b *Builder) DecodeSignedExtrinsic(raw []byte) (*SignedExtrinsic, error) {
	r := bytes.NewReader(raw)
	dec := scale.NewDecoder(r)

	length, err := codec.DecodeCompact(dec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read extrinsic length")
	}
	if length != uint64(r.Len()) {
		return nil, fmt.Errorf("extrinsic length prefix %d does not match body length %d", length, r.Len())
	}

	versionByte, err := dec.ReadOneByte()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read extrinsic version")
	}
	if versionByte&signedBit == 0 {
		return nil, fmt.Errorf("extrinsic is unsigned (version byte 0x%02x)", versionByte)
	}
	e := &SignedExtrinsic{ExtrinsicVersion: versionByte &^ signedBit}
	if e.ExtrinsicVersion != b.params.ExtrinsicVersion {
		return nil, fmt.Errorf("extrinsic version %d does not match expected %d", e.ExtrinsicVersion, b.params.ExtrinsicVersion)
	}

	if err := e.Signer.Decode(*dec); err != nil {
		return nil, errors.Wrap(err, "failed to read signer")
	}
	if err := dec.Read(e.Signature[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read signature")
	}
	nonce, err := codec.DecodeCompact(dec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read nonce")
	}
	e.Nonce = types.SequenceNumber(nonce)
	if err := e.Era.Decode(*dec); err != nil {
		return nil, err
	}
	if e.FormatTag, err = b.strategy.DecodeSignedExtra(dec); err != nil {
		return nil, errors.Wrap(err, "failed to read format tag")
	}

	callBytes := make([]byte, r.Len())
	if err := dec.Read(callBytes); err != nil {
		return nil, errors.Wrap(err, "failed to read call")
	}
	if e.Call, err = DecodeCall(callBytes, b.params.CallIndices); err != nil {
		return nil, err
	}
	return e, nil
}

// SigningPayloadFor rebuilds the payload a decoded extrinsic was signed over
func (b *Builder) SigningPayloadFor(e *SignedExtrinsic, genesisHash types.ChainHash) ([]byte, error) {
	callBytes, err := EncodeCall(e.Call, b.params.CallIndices)
	if err != nil {
		return nil, err
	}
	payload := &SigningPayload{
		Nonce:       e.Nonce,
		Call:        callBytes,
		Era:         e.Era,
		GenesisHash: genesisHash,
	}
	return payload.Encode(b.strategy)
}
