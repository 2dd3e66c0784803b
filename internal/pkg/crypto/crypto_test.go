package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewEncryptor_RejectsBadKeys(t *testing.T) {
	if _, err := NewEncryptor(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := NewEncryptor("not-base64!!!"); err == nil {
		t.Fatal("expected error for malformed base64")
	}
	shortKey := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewEncryptor(shortKey); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintext := "hunter2-gateway-password"
	blob, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := enc.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	a, err := enc.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := enc.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct ciphertexts for repeated encryption of the same plaintext")
	}

	var blobA, blobB Blob
	if err := json.Unmarshal([]byte(a), &blobA); err != nil {
		t.Fatalf("unmarshal a: %v", err)
	}
	if err := json.Unmarshal([]byte(b), &blobB); err != nil {
		t.Fatalf("unmarshal b: %v", err)
	}
	if blobA.IV == blobB.IV {
		t.Fatal("expected distinct IVs for repeated encryption calls")
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	raw, err := enc.Encrypt("sensitive")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Blob)
	}{
		{"ciphertext", func(b *Blob) { b.Ciphertext = flipFirstByte(b.Ciphertext) }},
		{"iv", func(b *Blob) { b.IV = flipFirstByte(b.IV) }},
		{"authTag", func(b *Blob) { b.AuthTag = flipFirstByte(b.AuthTag) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var blob Blob
			if err := json.Unmarshal([]byte(raw), &blob); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tc.mutate(&blob)
			tampered, err := json.Marshal(blob)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if _, err := enc.Decrypt(string(tampered)); err == nil {
				t.Fatalf("expected tamper on %s to be detected", tc.name)
			}
		})
	}
}

func flipFirstByte(b64 string) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) == 0 {
		return b64
	}
	raw[0] ^= 0xFF
	return base64.StdEncoding.EncodeToString(raw)
}
