// Package codec holds the SCALE building blocks shared by the storage key codec and the
// transaction builder: compact integers, the immortal era, the sender address and the
// two hashers the node uses (twox128 for storage keys, blake2b-256 for long payloads).
package codec

import (
	"bytes"
	"fmt"
	"math"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/xxhash"
	"golang.org/x/crypto/blake2b"
)

// EncodeCompact writes v with the variable-length compact integer encoding.
func EncodeCompact(enc *scale.Encoder, v uint64) error {
	return enc.EncodeUintCompact(*new(big.Int).SetUint64(v))
}

// EncodeCompactBig writes an arbitrary-width unsigned integer (e.g. a u128 balance) in compact form.
func EncodeCompactBig(enc *scale.Encoder, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("cannot compact-encode negative value %s", v.String())
	}
	return enc.EncodeUintCompact(*v)
}

// DecodeCompact reads a compact integer that must fit in 64 bits.
func DecodeCompact(dec *scale.Decoder) (uint64, error) {
	v, err := dec.DecodeUintCompact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("compact value %s overflows uint64", v.String())
	}
	return v.Uint64(), nil
}

// DecodeCompactBig reads a compact integer of any width.
func DecodeCompactBig(dec *scale.Decoder) (*big.Int, error) {
	return dec.DecodeUintCompact()
}

// Compact returns the compact encoding of v as a standalone byte slice.
func Compact(v uint64) []byte {
	var buf bytes.Buffer
	// writes to a bytes.Buffer cannot fail
	_ = EncodeCompact(scale.NewEncoder(&buf), v)
	return buf.Bytes()
}

// EncodeBytes writes a length-prefixed byte vector (Vec<u8>).
func EncodeBytes(enc *scale.Encoder, b []byte) error {
	if err := EncodeCompact(enc, uint64(len(b))); err != nil {
		return err
	}
	return enc.Write(b)
}

// DecodeBytes reads a length-prefixed byte vector. maxLen bounds the allocation.
func DecodeBytes(dec *scale.Decoder, maxLen uint64) ([]byte, error) {
	n, err := DecodeCompact(dec)
	if err != nil {
		return nil, err
	}
	if n > maxLen || n > math.MaxInt32 {
		return nil, fmt.Errorf("byte vector length %d exceeds limit %d", n, maxLen)
	}
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	if err := dec.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Twox128 is the node's storage hasher: xxhash64 with seeds 0 and 1, both little-endian, concatenated.
func Twox128(data []byte) []byte {
	return xxhash.New128(data).Sum(nil)
}

// Blake2_256 is the digest signed in place of payloads above the sign threshold.
func Blake2_256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
