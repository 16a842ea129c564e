// Package vault encrypts the portal password before it is stored. Values
// have the form hex(iv):hex(ciphertext), AES-256-CTR keyed with the SHA-256
// of the configured secret.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecrypt  = errors.New("vault: cannot decrypt value")
	ErrNoSecret = errors.New("vault: no secret configured")
)

func key(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func Encrypt(secret, plaintext string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	block, err := aes.NewCipher(key(secret))
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("vault: reading iv: %w", err)
	}
	out := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func Decrypt(secret, value string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	ivHex, ctHex, ok := strings.Cut(value, ":")
	if !ok {
		return "", ErrDecrypt
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrDecrypt
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", ErrDecrypt
	}
	block, err := aes.NewCipher(key(secret))
	if err != nil {
		return "", err
	}
	out := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(out, ct)
	return string(out), nil
}
