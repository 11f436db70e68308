package transactionBuilder

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/Layr-Labs/extrinsic-submitter-go/internal/tests"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/codec"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/keystore"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBuilder(t *testing.T, version config.ProtocolVersion) *Builder {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	b, err := NewBuilder(config.DefaultProtocolParams(version), logger)
	require.NoError(t, err)
	return b
}

func testGenesis() types.ChainHash {
	var h types.ChainHash
	for i := range h {
		h[i] = byte(i)
	}
	return h
}

func Test_NewBuilder(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	_, err := NewBuilder(config.DefaultProtocolParams("legacy"), logger)
	require.Error(t, err)

	params := config.DefaultProtocolParams(config.ProtocolVersionClassic)
	params.SignThreshold = -1
	_, err = NewBuilder(params, logger)
	require.Error(t, err)
}

func Test_GoldenExtrinsics(t *testing.T) {
	fixtures, err := tests.ReadGoldenFixtures(tests.GetProjectRootPath())
	require.NoError(t, err)
	require.NotEmpty(t, fixtures.Fixtures)

	for _, f := range fixtures.Fixtures {
		t.Run(f.Name, func(t *testing.T) {
			version, err := config.ParseProtocolVersion(f.Protocol)
			require.NoError(t, err)
			b := newTestBuilder(t, version)

			callBytes, err := hexutil.Decode(f.CallHex)
			require.NoError(t, err)
			call, err := DecodeCall(callBytes, config.DefaultCallIndexTable)
			require.NoError(t, err)

			reencoded, err := EncodeCall(call, config.DefaultCallIndexTable)
			require.NoError(t, err)
			assert.Equal(t, f.CallHex, hexutil.Encode(reencoded))

			genesis, err := types.ChainHashFromHex(f.GenesisHash)
			require.NoError(t, err)

			kp := keystore.DeriveKeypair(f.Seed)
			res, err := b.Build(kp, kp.AccountId(), call, types.SequenceNumber(f.Nonce), genesis)
			require.NoError(t, err)

			assert.Equal(t, f.SigningPayloadHex, hexutil.Encode(res.Payload))
			assert.Equal(t, f.SignatureHex, res.Extrinsic.Signature.Hex())
			assert.Equal(t, f.ExtrinsicHex, res.Hex)
		})
	}
}

func Test_Presets(t *testing.T) {
	t.Run("SudoSetHeapPages", func(t *testing.T) {
		encoded, err := EncodeCall(SudoSetHeapPages(64), config.DefaultCallIndexTable)
		require.NoError(t, err)
		assert.Equal(t, "0x0e0002034000000000000000", hexutil.Encode(encoded))
	})

	t.Run("CreateContract", func(t *testing.T) {
		var codeHash types.ChainHash
		for i := range codeHash {
			codeHash[i] = 0xab
		}
		endowment := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

		encoded, err := EncodeCall(CreateContract(endowment, 100000, codeHash, []byte{1, 2, 3}), config.DefaultCallIndexTable)
		require.NoError(t, err)
		assert.Equal(t,
			"0x0d0313000064a7b3b6e00d821a0600"+hexutil.Encode(codeHash[:])[2:]+"0c010203",
			hexutil.Encode(encoded),
		)
	})

	t.Run("DeployCode", func(t *testing.T) {
		encoded, err := EncodeCall(DeployCode(1, []byte{0xde, 0xad}), config.DefaultCallIndexTable)
		require.NoError(t, err)
		assert.Equal(t, "0x0d010408dead", hexutil.Encode(encoded))
	})

	t.Run("custom call indices", func(t *testing.T) {
		table := config.DefaultCallIndexTable
		table.Sudo = config.CallIndex{Module: 7, Call: 1}
		encoded, err := EncodeCall(SudoSetHeapPages(1), table)
		require.NoError(t, err)
		assert.Equal(t, "0x070102030100000000000000", hexutil.Encode(encoded))
	})
}

func Test_UnsupportedCalls(t *testing.T) {
	_, err := EncodeCall(nil, config.DefaultCallIndexTable)
	require.ErrorIs(t, err, ErrUnsupportedCallVariant)

	_, err = EncodeCall(Privileged(nil), config.DefaultCallIndexTable)
	require.ErrorIs(t, err, ErrUnsupportedCallVariant)

	_, err = DecodeCall([]byte{0x63, 0x00}, config.DefaultCallIndexTable)
	require.ErrorIs(t, err, ErrUnsupportedCallVariant)

	_, err = EncodeCall(CreateContract(big.NewInt(-1), 0, types.ChainHash{}, nil), config.DefaultCallIndexTable)
	require.Error(t, err)

	// sudo(sudo(sudo(sudo(sudo(sudo(...))))))
	nested := bytes.Repeat([]byte{0x0e, 0x00}, maxCallDepth+2)
	nested = append(nested, 0x02, 0x03, 0, 0, 0, 0, 0, 0, 0, 0)
	_, err = DecodeCall(nested, config.DefaultCallIndexTable)
	require.ErrorIs(t, err, ErrUnsupportedCallVariant)

	_, err = DecodeCall(append(mustEncode(t, SudoSetHeapPages(1)), 0xff), config.DefaultCallIndexTable)
	require.ErrorContains(t, err, "trailing bytes")
}

func mustEncode(t *testing.T, call CallPayload) []byte {
	t.Helper()
	encoded, err := EncodeCall(call, config.DefaultCallIndexTable)
	require.NoError(t, err)
	return encoded
}

func Test_RoundTrip(t *testing.T) {
	var codeHash types.ChainHash
	codeHash[0] = 0x42

	calls := []CallPayload{
		SudoSetHeapPages(4096),
		Privileged(DeployCode(9, []byte{1})),
		DeployCode(1_000_000, bytes.Repeat([]byte{0x01}, 70)),
		DeployCode(0, nil),
		CreateContract(big.NewInt(1), 5, codeHash, nil),
		CreateContract(new(big.Int).Lsh(big.NewInt(1), 127), 1<<40, codeHash, []byte("ctor")),
		&SetHeapPages{Pages: ^uint64(0)},
	}
	nonces := []types.SequenceNumber{0, 63, 64, 16384, 1 << 40}

	for _, version := range []config.ProtocolVersion{config.ProtocolVersionClassic, config.ProtocolVersionTagged} {
		b := newTestBuilder(t, version)
		kp := keystore.DeriveKeypair("Dave")

		for i, call := range calls {
			nonce := nonces[i%len(nonces)]
			t.Run(string(version)+"/"+call.CallName(), func(t *testing.T) {
				res, err := b.Build(kp, kp.AccountId(), call, nonce, testGenesis())
				require.NoError(t, err)

				decoded, err := b.DecodeSignedExtrinsicHex(res.Hex)
				require.NoError(t, err)

				assert.Equal(t, uint8(config.DefaultExtrinsicVersion), decoded.ExtrinsicVersion)
				assert.True(t, decoded.Signer.IsAccountId)
				assert.Equal(t, kp.AccountId(), decoded.Signer.AccountId)
				assert.Equal(t, nonce, decoded.Nonce)
				assert.True(t, decoded.Era.IsImmortal)
				assert.Equal(t, mustEncode(t, call), mustEncode(t, decoded.Call))
				if version == config.ProtocolVersionTagged {
					require.NotNil(t, decoded.FormatTag)
					assert.Equal(t, uint32(config.DefaultPayloadFormatTag), *decoded.FormatTag)
				} else {
					assert.Nil(t, decoded.FormatTag)
				}

				payload, err := b.SigningPayloadFor(decoded, testGenesis())
				require.NoError(t, err)
				assert.Equal(t, res.Payload, payload)
				assert.True(t, keystore.Verify(decoded.Signer.AccountId, res.SigningInput, decoded.Signature))
			})
		}
	}
}

func Test_SignThreshold(t *testing.T) {
	b := newTestBuilder(t, config.ProtocolVersionClassic)
	kp := keystore.DeriveKeypair("Alice")

	t.Run("payload at threshold is signed directly", func(t *testing.T) {
		res, err := b.Build(kp, kp.AccountId(), DeployCode(0, make([]byte, 217)), 0, testGenesis())
		require.NoError(t, err)
		require.Len(t, res.Payload, config.DefaultSignThreshold)
		assert.Equal(t, res.Payload, res.SigningInput)
	})

	t.Run("payload above threshold is hashed", func(t *testing.T) {
		res, err := b.Build(kp, kp.AccountId(), DeployCode(0, make([]byte, 218)), 0, testGenesis())
		require.NoError(t, err)
		require.Len(t, res.Payload, config.DefaultSignThreshold+1)
		assert.Equal(t, codec.Blake2_256(res.Payload), res.SigningInput)
	})

	t.Run("large contract code", func(t *testing.T) {
		code := bytes.Repeat([]byte{0x00, 0x61, 0x73, 0x6d}, 2560)
		res, err := b.Build(kp, kp.AccountId(), DeployCode(500000, code), 0, types.ChainHash{})
		require.NoError(t, err)

		assert.Len(t, res.Payload, 10282)
		assert.Len(t, res.SigningInput, 32)
		assert.True(t, keystore.Verify(kp.AccountId(), res.SigningInput, res.Extrinsic.Signature))
		assert.False(t, keystore.Verify(kp.AccountId(), res.Payload, res.Extrinsic.Signature))
	})

	t.Run("classic zero threshold falls back to the default", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		params := config.DefaultProtocolParams(config.ProtocolVersionClassic)
		params.SignThreshold = 0
		zero, err := NewBuilder(params, logger)
		require.NoError(t, err)

		res, err := zero.Build(kp, kp.AccountId(), DeployCode(0, make([]byte, 218)), 0, testGenesis())
		require.NoError(t, err)
		assert.Len(t, res.SigningInput, 32)
	})

	t.Run("tagged signs large payloads directly", func(t *testing.T) {
		tagged := newTestBuilder(t, config.ProtocolVersionTagged)
		code := bytes.Repeat([]byte{0x00, 0x61, 0x73, 0x6d}, 2560)
		res, err := tagged.Build(kp, kp.AccountId(), DeployCode(500000, code), 0, types.ChainHash{})
		require.NoError(t, err)

		assert.Len(t, res.Payload, 10283)
		assert.Equal(t, res.Payload, res.SigningInput)
		assert.True(t, keystore.Verify(kp.AccountId(), res.Payload, res.Extrinsic.Signature))

		decoded, err := tagged.DecodeSignedExtrinsicHex(res.Hex)
		require.NoError(t, err)
		payload, err := tagged.SigningPayloadFor(decoded, types.ChainHash{})
		require.NoError(t, err)
		assert.True(t, keystore.Verify(kp.AccountId(), payload, decoded.Signature))
	})

	t.Run("custom threshold", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		params := config.DefaultProtocolParams(config.ProtocolVersionTagged)
		params.SignThreshold = 16
		small, err := NewBuilder(params, logger)
		require.NoError(t, err)

		res, err := small.Build(kp, kp.AccountId(), SudoSetHeapPages(1), 0, testGenesis())
		require.NoError(t, err)
		assert.Len(t, res.SigningInput, 32)
	})
}

func Test_BuildErrors(t *testing.T) {
	b := newTestBuilder(t, config.ProtocolVersionClassic)

	t.Run("sender does not match keypair", func(t *testing.T) {
		kp := keystore.DeriveKeypair("Alice")
		bob := keystore.DeriveKeypair("Bob").AccountId()
		_, err := b.BuildTransaction(kp, bob, SudoSetHeapPages(1), 0, testGenesis())
		require.ErrorIs(t, err, keystore.ErrInvalidKeyMaterial)
	})

	t.Run("zeroized keypair", func(t *testing.T) {
		kp := keystore.DeriveKeypair("Alice")
		kp.Zeroize()
		_, err := b.BuildTransaction(kp, kp.AccountId(), SudoSetHeapPages(1), 0, testGenesis())
		require.ErrorIs(t, err, keystore.ErrInvalidKeyMaterial)
	})

	t.Run("nil keypair", func(t *testing.T) {
		_, err := b.BuildTransaction(nil, types.AccountId{}, SudoSetHeapPages(1), 0, testGenesis())
		require.ErrorIs(t, err, keystore.ErrInvalidKeyMaterial)
	})

	t.Run("nil call", func(t *testing.T) {
		kp := keystore.DeriveKeypair("Alice")
		_, err := b.BuildTransaction(kp, kp.AccountId(), nil, 0, testGenesis())
		require.ErrorIs(t, err, ErrUnsupportedCallVariant)
	})
}

func Test_DecodeErrors(t *testing.T) {
	classic := newTestBuilder(t, config.ProtocolVersionClassic)
	tagged := newTestBuilder(t, config.ProtocolVersionTagged)
	kp := keystore.DeriveKeypair("Alice")

	res, err := tagged.Build(kp, kp.AccountId(), SudoSetHeapPages(1), 0, testGenesis())
	require.NoError(t, err)

	_, err = classic.DecodeSignedExtrinsicHex("0xzz")
	require.Error(t, err)

	truncated := res.Encoded[:len(res.Encoded)-1]
	_, err = tagged.DecodeSignedExtrinsic(truncated)
	require.ErrorContains(t, err, "length prefix")

	unsigned := append([]byte{}, res.Encoded...)
	unsigned[2] = config.DefaultExtrinsicVersion
	_, err = tagged.DecodeSignedExtrinsic(unsigned)
	require.ErrorContains(t, err, "unsigned")
}
