package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

const (
	addressAccountIdTag = 0xff
	addressIndexU64Tag  = 0xfe
	addressIndexU32Tag  = 0xfd
	addressIndexU16Tag  = 0xfc

	// indices below this are written as their own single byte
	addressIndexShortLimit = 0xf0
)

// Address is the sender field of a signed extrinsic. The node accepts either the full
// account id or a short account index; this client always sends the account id.
type Address struct {
	IsAccountId  bool
	AccountId    types.AccountId
	AccountIndex uint64
}

func NewAddressFromAccountId(id types.AccountId) Address {
	return Address{IsAccountId: true, AccountId: id}
}

func NewAddressFromIndex(index uint64) Address {
	return Address{AccountIndex: index}
}

func (a Address) Encode(enc scale.Encoder) error {
	if a.IsAccountId {
		if err := enc.PushByte(addressAccountIdTag); err != nil {
			return err
		}
		return enc.Write(a.AccountId[:])
	}

	idx := a.AccountIndex
	switch {
	case idx < addressIndexShortLimit:
		return enc.PushByte(byte(idx))
	case idx <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = addressIndexU16Tag
		binary.LittleEndian.PutUint16(buf[1:], uint16(idx))
		return enc.Write(buf)
	case idx <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = addressIndexU32Tag
		binary.LittleEndian.PutUint32(buf[1:], uint32(idx))
		return enc.Write(buf)
	default:
		buf := make([]byte, 9)
		buf[0] = addressIndexU64Tag
		binary.LittleEndian.PutUint64(buf[1:], idx)
		return enc.Write(buf)
	}
}

// Decode accepts only the shortest form of an index, as the node does.
func (a *Address) Decode(dec scale.Decoder) error {
	tag, err := dec.ReadOneByte()
	if err != nil {
		return err
	}

	switch {
	case tag == addressAccountIdTag:
		a.IsAccountId = true
		return dec.Read(a.AccountId[:])
	case tag == addressIndexU64Tag:
		buf := make([]byte, 8)
		if err := dec.Read(buf); err != nil {
			return err
		}
		a.AccountIndex = binary.LittleEndian.Uint64(buf)
		if a.AccountIndex <= 0xffffffff {
			return fmt.Errorf("non-canonical u64 address index %d", a.AccountIndex)
		}
	case tag == addressIndexU32Tag:
		buf := make([]byte, 4)
		if err := dec.Read(buf); err != nil {
			return err
		}
		a.AccountIndex = uint64(binary.LittleEndian.Uint32(buf))
		if a.AccountIndex <= 0xffff {
			return fmt.Errorf("non-canonical u32 address index %d", a.AccountIndex)
		}
	case tag == addressIndexU16Tag:
		buf := make([]byte, 2)
		if err := dec.Read(buf); err != nil {
			return err
		}
		a.AccountIndex = uint64(binary.LittleEndian.Uint16(buf))
		if a.AccountIndex < addressIndexShortLimit {
			return fmt.Errorf("non-canonical u16 address index %d", a.AccountIndex)
		}
	case tag < addressIndexShortLimit:
		a.AccountIndex = uint64(tag)
	default:
		return fmt.Errorf("invalid address tag 0x%02x", tag)
	}
	a.IsAccountId = false
	return nil
}
