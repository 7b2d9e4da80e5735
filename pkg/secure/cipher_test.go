package secure

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptRoundTrip(t *testing.T) {
	c, err := NewCipher("top-secret", "withdrawal.account")
	require.NoError(t, err)

	enc, err := c.Encrypt("110-234-567890")
	require.NoError(t, err)
	require.NotContains(t, enc, "567890")

	other, err := c.Encrypt("110-234-567890")
	require.NoError(t, err)
	require.NotEqual(t, enc, other)

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "110-234-567890", plain)
}

func TestDecryptWithOtherPurposeFails(t *testing.T) {
	a, err := NewCipher("top-secret", "withdrawal.account")
	require.NoError(t, err)
	b, err := NewCipher("top-secret", "payment.account")
	require.NoError(t, err)

	enc, err := a.Encrypt("1234")
	require.NoError(t, err)
	_, err = b.Decrypt(enc)
	require.Error(t, err)

	_, err = a.Decrypt("zz")
	require.Error(t, err)

	_, err = NewCipher("", "x")
	require.Error(t, err)
}

func TestMask(t *testing.T) {
	require.Equal(t, "**********7890", Mask("110-234-567890"))
	require.Equal(t, "****", Mask("123"))
}
