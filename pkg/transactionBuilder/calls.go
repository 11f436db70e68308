package transactionBuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/codec"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/pkg/errors"
)

// maxCallDepth bounds nested privileged calls when decoding untrusted input
const maxCallDepth = 4

var ErrUnsupportedCallVariant = errors.New("unsupported call variant")

// CallPayload is one dispatchable of the node's runtime. The set of variants is
// closed: only the calls declared in this file can be encoded.
type CallPayload interface {
	CallName() string
	encodeCall(enc *scale.Encoder, indices config.CallIndexTable) error
}

// PrivilegedCall dispatches Inner with root origin (sudo)
type PrivilegedCall struct {
	Inner CallPayload
}

// SetHeapPages changes the runtime's heap allocation (consensus::set_heap_pages)
type SetHeapPages struct {
	Pages uint64
}

// ContractPutCode uploads contract code (contract::put_code)
type ContractPutCode struct {
	GasLimit uint64
	Code     []byte
}

// ContractCreate instantiates uploaded code (contract::create)
type ContractCreate struct {
	Endowment *big.Int
	GasLimit  uint64
	CodeHash  types.ChainHash
	Data      []byte
}

func (c *PrivilegedCall) CallName() string { return "sudo" }
func (c *SetHeapPages) CallName() string { return "set_heap_pages" }
func (c *ContractPutCode) CallName() string { return "put_code" }
func (c *ContractCreate) CallName() string { return "create" }

// SudoSetHeapPages is the privileged heap-pages preset
func SudoSetHeapPages(pages uint64) CallPayload {
	return Privileged(&SetHeapPages{Pages: pages})
}

func Privileged(inner CallPayload) CallPayload {
	return &PrivilegedCall{Inner: inner}
}

func DeployCode(gasLimit uint64, code []byte) CallPayload {
	return &ContractPutCode{GasLimit: gasLimit, Code: code}
}

func CreateContract(endowment *big.Int, gasLimit uint64, codeHash types.ChainHash, data []byte) CallPayload {
	return &ContractCreate{
		Endowment: endowment,
		GasLimit:  gasLimit,
		CodeHash:  codeHash,
		Data:      data,
	}
}

func writeCallIndex(enc *scale.Encoder, index config.CallIndex) error {
	return enc.Write([]byte{index.Module, index.Call})
}

func (c *PrivilegedCall) encodeCall(enc *scale.Encoder, indices config.CallIndexTable) error {
	if c.Inner == nil {
		return errors.Wrap(ErrUnsupportedCallVariant, "privileged call has no inner call")
	}
	if err := writeCallIndex(enc, indices.Sudo); err != nil {
		return err
	}
	return c.Inner.encodeCall(enc, indices)
}

func (c *SetHeapPages) encodeCall(enc *scale.Encoder, indices config.CallIndexTable) error {
	if err := writeCallIndex(enc, indices.SetHeapPages); err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, c.Pages)
	return enc.Write(buf)
}

func (c *ContractPutCode) encodeCall(enc *scale.Encoder, indices config.CallIndexTable) error {
	if err := writeCallIndex(enc, indices.PutCode); err != nil {
		return err
	}
	if err := codec.EncodeCompact(enc, c.GasLimit); err != nil {
		return err
	}
	return codec.EncodeBytes(enc, c.Code)
}

func (c *ContractCreate) encodeCall(enc *scale.Encoder, indices config.CallIndexTable) error {
	if err := writeCallIndex(enc, indices.Create); err != nil {
		return err
	}
	if err := codec.EncodeCompactBig(enc, c.Endowment); err != nil {
		return err
	}
	if err := codec.EncodeCompact(enc, c.GasLimit); err != nil {
		return err
	}
	if err := enc.Write(c.CodeHash[:]); err != nil {
		return err
	}
	return codec.EncodeBytes(enc, c.Data)
}

// EncodeCall returns the SCALE encoding of call under the given index table
func EncodeCall(call CallPayload, indices config.CallIndexTable) ([]byte, error) {
	if call == nil {
		return nil, errors.Wrap(ErrUnsupportedCallVariant, "call is nil")
	}
	var buf bytes.Buffer
	if err := call.encodeCall(scale.NewEncoder(&buf), indices); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCall parses a call encoded with the given index table. The whole input must
// be consumed.
func DecodeCall(raw []byte, indices config.CallIndexTable) (CallPayload, error) {
	r := bytes.NewReader(raw)
	call, err := decodeCall(scale.NewDecoder(r), indices, 0)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %s call", r.Len(), call.CallName())
	}
	return call, nil
}

func decodeCall(dec *scale.Decoder, indices config.CallIndexTable, depth int) (CallPayload, error) {
	if depth > maxCallDepth {
		return nil, errors.Wrapf(ErrUnsupportedCallVariant, "privileged calls nested deeper than %d", maxCallDepth)
	}

	var idx [2]byte
	if err := dec.Read(idx[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read call index")
	}
	index := config.CallIndex{Module: idx[0], Call: idx[1]}

	switch index {
	case indices.Sudo:
		inner, err := decodeCall(dec, indices, depth+1)
		if err != nil {
			return nil, err
		}
		return &PrivilegedCall{Inner: inner}, nil

	case indices.SetHeapPages:
		buf := make([]byte, 8)
		if err := dec.Read(buf); err != nil {
			return nil, errors.Wrap(err, "failed to read heap pages")
		}
		return &SetHeapPages{Pages: binary.LittleEndian.Uint64(buf)}, nil

	case indices.PutCode:
		gas, err := codec.DecodeCompact(dec)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read gas limit")
		}
		code, err := codec.DecodeBytes(dec, config.DefaultMaxCodeSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read code")
		}
		return &ContractPutCode{GasLimit: gas, Code: code}, nil

	case indices.Create:
		endowment, err := codec.DecodeCompactBig(dec)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read endowment")
		}
		gas, err := codec.DecodeCompact(dec)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read gas limit")
		}
		var codeHash types.ChainHash
		if err := dec.Read(codeHash[:]); err != nil {
			return nil, errors.Wrap(err, "failed to read code hash")
		}
		data, err := codec.DecodeBytes(dec, config.DefaultMaxCodeSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read constructor data")
		}
		return &ContractCreate{
			Endowment: endowment,
			GasLimit:  gas,
			CodeHash:  codeHash,
			Data:      data,
		}, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedCallVariant, "no call at index %s", index)
}
