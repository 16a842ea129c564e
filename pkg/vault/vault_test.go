package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	enc, err := Encrypt("s3cret", "κωδικός-123")
	require.NoError(t, err)

	iv, ct, ok := strings.Cut(enc, ":")
	require.True(t, ok)
	assert.Len(t, iv, 32)
	assert.NotEmpty(t, ct)

	dec, err := Decrypt("s3cret", enc)
	require.NoError(t, err)
	assert.Equal(t, "κωδικός-123", dec)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	a, err := Encrypt("k", "same")
	require.NoError(t, err)
	b, err := Encrypt("k", "same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptKnownValue(t *testing.T) {
	// Values written by earlier deployments use the same layout.
	sum := sha256.Sum256([]byte("secret"))
	block, err := aes.NewCipher(sum[:])
	require.NoError(t, err)
	iv := []byte("0123456789abcdef")
	ct := make([]byte, len("pass"))
	cipher.NewCTR(block, iv).XORKeyStream(ct, []byte("pass"))

	dec, err := Decrypt("secret", hex.EncodeToString(iv)+":"+hex.EncodeToString(ct))
	require.NoError(t, err)
	assert.Equal(t, "pass", dec)
}

func TestDecryptMalformed(t *testing.T) {
	for _, v := range []string{"", "nocolon", "zz:00", "0011:00", strings.Repeat("0", 32) + ":xyz"} {
		_, err := Decrypt("k", v)
		assert.ErrorIs(t, err, ErrDecrypt, v)
	}
}

func TestNoSecret(t *testing.T) {
	_, err := Encrypt("", "x")
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = Decrypt("", "00:00")
	assert.ErrorIs(t, err, ErrNoSecret)
}
