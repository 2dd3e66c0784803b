// Package crypto implements the gateway credential codec (AEAD, AES-256-GCM).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	keySize = 32 // AES-256
	ivSize  = 12 // GCM standard nonce size
)

// Encryptor provides authenticated encryption (AES-256-GCM) for gateway
// passwords. The key is fixed for the process lifetime and never leaves
// memory once loaded.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an Encryptor from a base64-encoded 32-byte key.
// Fails fast if the key is absent, malformed, or the wrong length — the
// caller (boot/config validation) must treat this as fatal.
func NewEncryptor(base64Key string) (*Encryptor, error) {
	if base64Key == "" {
		return nil, errors.New("crypto: encryption key is required")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid base64 key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: key must decode to %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Blob is the JSON shape stored at rest: {ciphertext, iv, authTag}, all
// base64. GCM's Seal appends the auth tag to the ciphertext; Blob splits
// them back out so the on-disk shape matches the documented wire format
// exactly.
type Blob struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// Encrypt seals plaintext under a fresh random 12-byte IV and returns the
// serialized Blob as JSON. A fresh IV is generated on every call — IV reuse
// under a fixed key is forbidden for GCM and would break its authentication
// guarantee.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: failed to generate IV: %w", err)
	}

	sealed := e.gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagSize := e.gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := Blob{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}
	out, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("crypto: failed to marshal blob: %w", err)
	}
	return string(out), nil
}

// Decrypt parses a Blob JSON string and verifies+opens it. Any tamper to
// ciphertext, iv, or authTag produces an error here — never a silent
// truncation or an empty password.
func (e *Encryptor) Decrypt(blobJSON string) (string, error) {
	var blob Blob
	if err := json.Unmarshal([]byte(blobJSON), &blob); err != nil {
		return "", fmt.Errorf("crypto: invalid blob JSON: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid iv: %w", err)
	}
	if len(iv) != ivSize {
		return "", fmt.Errorf("crypto: invalid iv length %d", len(iv))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(blob.AuthTag)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid authTag: %w", err)
	}
	if len(tag) != e.gcm.Overhead() {
		return "", fmt.Errorf("crypto: invalid authTag length %d", len(tag))
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := e.gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (tampered or wrong key): %w", err)
	}
	return string(plaintext), nil
}
