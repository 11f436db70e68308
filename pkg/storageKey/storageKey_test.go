package storageKey

import (
	"testing"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/keystore"
	"github.com/stretchr/testify/assert"
)

func Test_SequenceNumberKey(t *testing.T) {
	alice := keystore.DeriveKeypair("Alice").AccountId()

	t.Run("matches reference derivation", func(t *testing.T) {
		c := NewStorageKeyCodec("System AccountNonce")
		assert.Equal(t, "0x51244d3a35bfebd9d7e498017c2e06f6", c.SequenceNumberKeyHex(alice))
		assert.Len(t, c.SequenceNumberKey(alice), 16)
	})

	t.Run("stable across calls and instances", func(t *testing.T) {
		first := NewStorageKeyCodec("").SequenceNumberKey(alice)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, NewStorageKeyCodec("").SequenceNumberKey(alice))
		}
	})

	t.Run("prefix and account both change the key", func(t *testing.T) {
		c := NewStorageKeyCodec("")
		bob := keystore.DeriveKeypair("Bob").AccountId()
		assert.NotEqual(t, c.SequenceNumberKey(alice), c.SequenceNumberKey(bob))
		assert.NotEqual(t, c.SequenceNumberKey(alice), NewStorageKeyCodec("System Nonce").SequenceNumberKey(alice))
	})
}
