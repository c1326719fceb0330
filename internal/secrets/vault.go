// Package secrets seals institution credentials at rest.
//
// Every record gets its own random salt; the AES-256-GCM key is derived from
// the master secret and that salt with HKDF-SHA256, so two accounts sealed
// with the same master secret never share a key.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltSize = 16
	keySize  = 32
	info     = "bankrecon credentials v1"
)

var (
	// ErrDecryption covers corrupt ciphertext, tampering and a wrong master secret.
	ErrDecryption = errors.New("credential decryption failed")
	// ErrNoMasterSecret is returned when the vault is built without a secret.
	ErrNoMasterSecret = errors.New("master secret required")
)

// Sealed is the at-rest form of a credential blob.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
}

// Vault seals and unseals credentials with a master secret.
type Vault struct {
	master []byte
	rand   io.Reader
}

// NewVault builds a vault keyed by masterSecret.
func NewVault(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrNoMasterSecret
	}
	return &Vault{master: []byte(masterSecret), rand: rand.Reader}, nil
}

// Seal encrypts plain under a fresh salt and nonce.
func (v *Vault) Seal(plain []byte) (Sealed, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(v.rand, salt); err != nil {
		return Sealed{}, fmt.Errorf("read salt: %w", err)
	}
	gcm, err := v.aead(salt)
	if err != nil {
		return Sealed{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return Sealed{}, fmt.Errorf("read nonce: %w", err)
	}
	return Sealed{
		Ciphertext: gcm.Seal(nil, nonce, plain, nil),
		Nonce:      nonce,
		Salt:       salt,
	}, nil
}

// Unseal decrypts s. Every failure wraps ErrDecryption.
func (v *Vault) Unseal(s Sealed) ([]byte, error) {
	if len(s.Salt) != saltSize {
		return nil, fmt.Errorf("%w: bad salt length %d", ErrDecryption, len(s.Salt))
	}
	gcm, err := v.aead(s.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(s.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrDecryption, len(s.Nonce))
	}
	plain, err := gcm.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plain, nil
}

// SealJSON marshals v and seals the result.
func (v *Vault) SealJSON(value interface{}) (Sealed, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Sealed{}, fmt.Errorf("marshal credentials: %w", err)
	}
	return v.Seal(data)
}

// UnsealJSON unseals s into out.
func (v *Vault) UnsealJSON(s Sealed, out interface{}) error {
	data, err := v.Unseal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode credentials: %v", ErrDecryption, err)
	}
	return nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, v.master, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
