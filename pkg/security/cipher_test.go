package security

import (
	"bytes"
	"testing"
)

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{
			name:    "valid 32-byte key",
			key:     make([]byte, 32),
			wantErr: false,
		},
		{
			name:    "invalid short key",
			key:     make([]byte, 16),
			wantErr: true,
		},
		{
			name:    "empty key",
			key:     []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCipher() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && c == nil {
				t.Error("NewCipher() returned nil without error")
			}
		})
	}
}

func TestNewCipherFromPasswordRejectsEmpty(t *testing.T) {
	if _, err := NewCipherFromPassword(""); err == nil {
		t.Error("NewCipherFromPassword(\"\") should fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	c, err := NewCipherFromPassword("test-password")
	if err != nil {
		t.Fatalf("Failed to create Cipher: %v", err)
	}

	plaintext := []byte(`{"content":"hi"}`)
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("Encrypt() output contains the plaintext")
	}

	again, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(ciphertext, again) {
		t.Error("Encrypt() should use a fresh nonce per call")
	}

	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	c1, _ := NewCipherFromPassword("one")
	c2, _ := NewCipherFromPassword("two")

	ciphertext, err := c1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := c2.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() with the wrong key should fail")
	}
	if _, err := c1.Decrypt([]byte{0x01}); err == nil {
		t.Error("Decrypt() of a truncated ciphertext should fail")
	}
}

func TestObjectRoundtrip(t *testing.T) {
	c, _ := NewCipherFromPassword("test-password")

	obj := map[string]any{"content": "hi", "likes": float64(3), "pinned": true}
	enc, err := c.EncryptObject(obj)
	if err != nil {
		t.Fatalf("EncryptObject() error = %v", err)
	}

	got, err := c.DecryptObject(enc)
	if err != nil {
		t.Fatalf("DecryptObject() error = %v", err)
	}
	for k, v := range obj {
		if got[k] != v {
			t.Errorf("DecryptObject()[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestHashValue(t *testing.T) {
	h := HashValue("hi")
	if len(h) != 64 {
		t.Errorf("HashValue() length = %d, want 64", len(h))
	}
	if h != HashValue("hi") {
		t.Error("HashValue() is not deterministic")
	}
	if h == HashValue("bye") {
		t.Error("HashValue() collides for different inputs")
	}
}
