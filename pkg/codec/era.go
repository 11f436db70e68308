package codec

import (
	"errors"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

var ErrMortalEraUnsupported = errors.New("mortal eras are not supported")

// Era is the validity window of an extrinsic. This client only ever produces the
// immortal variant, pinned to the genesis hash.
type Era struct {
	IsImmortal bool
}

// ImmortalEra is the only era the builder emits.
var ImmortalEra = Era{IsImmortal: true}

func (e Era) Encode(enc scale.Encoder) error {
	if !e.IsImmortal {
		return ErrMortalEraUnsupported
	}
	return enc.PushByte(0)
}

func (e *Era) Decode(dec scale.Decoder) error {
	b, err := dec.ReadOneByte()
	if err != nil {
		return err
	}
	if b != 0 {
		return fmt.Errorf("%w: leading byte 0x%02x", ErrMortalEraUnsupported, b)
	}
	e.IsImmortal = true
	return nil
}
