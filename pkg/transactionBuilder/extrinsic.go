package transactionBuilder

import (
	"bytes"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/codec"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

const signedBit = 0x80

// SigningPayload is the byte string the sender signs
type SigningPayload struct {
	Nonce       types.SequenceNumber
	Call        []byte
	Era         codec.Era
	GenesisHash types.ChainHash
}

func (p *SigningPayload) Encode(strategy IProtocolStrategy) ([]byte, error) {
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)

	if err := codec.EncodeCompact(enc, uint64(p.Nonce)); err != nil {
		return nil, err
	}
	if err := enc.Write(p.Call); err != nil {
		return nil, err
	}
	if err := p.Era.Encode(*enc); err != nil {
		return nil, err
	}
	if err := enc.Write(p.GenesisHash[:]); err != nil {
		return nil, err
	}
	if err := strategy.EncodePayloadExtra(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SignedExtrinsic is a call together with the signature that authorizes it
type SignedExtrinsic struct {
	ExtrinsicVersion uint8
	Signer           codec.Address
	Signature        types.Signature
	Nonce            types.SequenceNumber
	Era              codec.Era

	// FormatTag is set when the protocol carries the payload format tag
	FormatTag *uint32

	Call CallPayload
}

// encode writes compact(len(body)) ++ body, where callBytes is the already encoded call
func (e *SignedExtrinsic) encode(strategy IProtocolStrategy, callBytes []byte) ([]byte, error) {
	var body bytes.Buffer
	enc := scale.NewEncoder(&body)

	if err := enc.PushByte(e.ExtrinsicVersion | signedBit); err != nil {
		return nil, err
	}
	if err := e.Signer.Encode(*enc); err != nil {
		return nil, err
	}
	if err := enc.Write(e.Signature[:]); err != nil {
		return nil, err
	}
	if err := codec.EncodeCompact(enc, uint64(e.Nonce)); err != nil {
		return nil, err
	}
	if err := e.Era.Encode(*enc); err != nil {
		return nil, err
	}
	if err := strategy.EncodeSignedExtra(enc); err != nil {
		return nil, err
	}
	if err := enc.Write(callBytes); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	outEnc := scale.NewEncoder(&out)
	if err := codec.EncodeBytes(outEnc, body.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
