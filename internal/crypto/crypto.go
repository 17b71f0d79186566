// Package crypto encrypts tenant SMTP credentials at rest.
//
// The cipher key is derived from the configured master key with HKDF-SHA256
// and the data is sealed with AES-256-GCM. The stored form is
// nonce || ciphertext || tag, so a ciphertext is self-contained and the
// derivation parameters below are part of the stored-data format: changing
// them orphans every existing ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfSalt = "webhooker-v1"
	hkdfInfo = "aes256gcm-key"
	keySize  = 32 // AES-256
)

// ErrCiphertextTooShort indicates a stored blob shorter than the nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// ErrDecryptFailed indicates authentication failure: a tampered blob or a
// different master key.
var ErrDecryptFailed = errors.New("decryption failed")

// Crypter seals and opens byte slices with a key derived once at startup.
type Crypter struct {
	aead cipher.AEAD
}

// New derives the AES-256 key from masterKey and prepares the AEAD.
// The master key is an arbitrary non-empty string; HKDF stretches it.
func New(masterKey string) (*Crypter, error) {
	if masterKey == "" {
		return nil, errors.New("master key must not be empty")
	}

	r := hkdf.New(sha256.New, []byte(masterKey), []byte(hkdfSalt), []byte(hkdfInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Crypter{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns
// nonce || ciphertext || tag.
func (c *Crypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// EncryptString is Encrypt for string plaintext.
func (c *Crypter) EncryptString(plaintext string) ([]byte, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens a nonce-prefixed blob produced by Encrypt.
func (c *Crypter) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// DecryptString is Decrypt returning a string.
func (c *Crypter) DecryptString(data []byte) (string, error) {
	b, err := c.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
