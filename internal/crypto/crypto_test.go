package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhooker-io/webhooker/internal/crypto"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c, err := crypto.New("master-key")
	require.NoError(t, err)

	blob, err := c.EncryptString("smtp-password-123")
	require.NoError(t, err)

	got, err := c.DecryptString(blob)
	require.NoError(t, err)
	assert.Equal(t, "smtp-password-123", got)
}

func TestEncrypt_NonceIsRandom(t *testing.T) {
	c, err := crypto.New("master-key")
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of the same plaintext must differ")
}

func TestDecrypt_WrongKey(t *testing.T) {
	c1, err := crypto.New("key-one")
	require.NoError(t, err)
	c2, err := crypto.New("key-two")
	require.NoError(t, err)

	blob, err := c1.EncryptString("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(blob)
	assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
}

func TestDecrypt_Tampered(t *testing.T) {
	c, err := crypto.New("master-key")
	require.NoError(t, err)

	blob, err := c.EncryptString("secret")
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff

	_, err = c.Decrypt(blob)
	assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
}

func TestDecrypt_TooShort(t *testing.T) {
	c, err := crypto.New("master-key")
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{1, 2, 3})
	assert.ErrorIs(t, err, crypto.ErrCiphertextTooShort)
}

func TestNew_EmptyKey(t *testing.T) {
	_, err := crypto.New("")
	assert.Error(t, err)
}

func TestEncrypt_EmptyPlaintext(t *testing.T) {
	c, err := crypto.New("master-key")
	require.NoError(t, err)

	blob, err := c.Encrypt(nil)
	require.NoError(t, err)

	got, err := c.Decrypt(blob)
	require.NoError(t, err)
	assert.Empty(t, got)
}
