package transactionBuilder

import (
	"fmt"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/codec"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

// IProtocolStrategy captures what differs between node generations: the trailing
// fields of the signing payload and of the signed tuple, and what is actually signed.
type IProtocolStrategy interface {
	Version() config.ProtocolVersion

	// SigningInput returns the bytes handed to the signer for an encoded payload
	SigningInput(payload []byte) []byte

	// EncodePayloadExtra is written after the genesis hash in the signing payload
	EncodePayloadExtra(enc *scale.Encoder) error

	// EncodeSignedExtra is written after the era in the signed tuple
	EncodeSignedExtra(enc *scale.Encoder) error

	// DecodeSignedExtra reads back what EncodeSignedExtra wrote
	DecodeSignedExtra(dec *scale.Decoder) (*uint32, error)
}

func NewProtocolStrategy(params config.ProtocolParams) (IProtocolStrategy, error) {
	switch params.Version {
	case config.ProtocolVersionClassic:
		threshold := params.SignThreshold
		if threshold == 0 {
			threshold = config.DefaultSignThreshold
		}
		return &classicStrategy{signThreshold: threshold}, nil
	case config.ProtocolVersionTagged:
		return &taggedStrategy{
			formatTag:     params.PayloadFormatTag,
			signThreshold: params.SignThreshold,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported protocol version: %q (supported: %s)", params.Version, config.GetSupportedProtocolVersionsString())
	}
}

// hashAbove signs payloads longer than threshold through their blake2b-256 digest
func hashAbove(payload []byte, threshold int) []byte {
	if len(payload) > threshold {
		return codec.Blake2_256(payload)
	}
	return payload
}

type classicStrategy struct {
	signThreshold int
}

func (s *classicStrategy) Version() config.ProtocolVersion {
	return config.ProtocolVersionClassic
}

func (s *classicStrategy) SigningInput(payload []byte) []byte {
	return hashAbove(payload, s.signThreshold)
}

func (s *classicStrategy) EncodePayloadExtra(*scale.Encoder) error {
	return nil
}

func (s *classicStrategy) EncodeSignedExtra(*scale.Encoder) error {
	return nil
}

func (s *classicStrategy) DecodeSignedExtra(*scale.Decoder) (*uint32, error) {
	return nil, nil
}

type taggedStrategy struct {
	formatTag uint32

	// signThreshold is zero unless configured; the tagged node verifies the full payload
	signThreshold int
}

func (s *taggedStrategy) Version() config.ProtocolVersion {
	return config.ProtocolVersionTagged
}

func (s *taggedStrategy) SigningInput(payload []byte) []byte {
	if s.signThreshold == 0 {
		return payload
	}
	return hashAbove(payload, s.signThreshold)
}

func (s *taggedStrategy) EncodePayloadExtra(enc *scale.Encoder) error {
	return codec.EncodeCompact(enc, uint64(s.formatTag))
}

func (s *taggedStrategy) EncodeSignedExtra(enc *scale.Encoder) error {
	return codec.EncodeCompact(enc, uint64(s.formatTag))
}

func (s *taggedStrategy) DecodeSignedExtra(dec *scale.Decoder) (*uint32, error) {
	v, err := codec.DecodeCompact(dec)
	if err != nil {
		return nil, err
	}
	if v != uint64(s.formatTag) {
		return nil, fmt.Errorf("format tag %d does not match expected %d", v, s.formatTag)
	}
	tag := uint32(v)
	return &tag, nil
}
