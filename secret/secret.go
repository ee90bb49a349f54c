// Package secret seals host passwords at rest with AES-256-GCM.
//
// A sealed value is hex(nonce) + "." + hex(ciphertext||tag).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// CryptoError reports a malformed key or sealed value, or a failed open.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return "secret: " + e.Op + ": " + e.Err.Error() }

func (e *CryptoError) Unwrap() error { return e.Err }

var (
	errMalformed = errors.New("malformed sealed value")
	errKeySize   = fmt.Errorf("key must be %d bytes", KeySize)
)

// Cipher encrypts and decrypts short secrets.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: "new cipher", Err: errKeySize}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "new cipher", Err: err}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: "new cipher", Err: err}
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromHex builds a Cipher from a hex-encoded key.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, &CryptoError{Op: "decode key", Err: err}
	}
	return NewCipher(key)
}

// GenerateKey returns a random hex-encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + "." + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(sealed string) (string, error) {
	nonceHex, dataHex, ok := strings.Cut(sealed, ".")
	if !ok {
		return "", &CryptoError{Op: "decrypt", Err: errMalformed}
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", &CryptoError{Op: "decrypt", Err: errMalformed}
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: errMalformed}
	}
	plain, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: err}
	}
	return string(plain), nil
}
