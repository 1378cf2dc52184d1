package ibe

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"courier/internal/domain"
)

const keyBytes = 32

var (
	// ErrBadSignature is returned when verification fails.
	ErrBadSignature = errors.New("signature verification failed")
)

// DevScheme implements domain.Scheme from a single master secret. Everyone
// holding the same master secret agrees on all derived keys, which is what
// local multi-store tests need. It is not identity-based encryption and must
// never leave a development setup.
type DevScheme struct {
	master []byte
}

// NewDevScheme returns a DevScheme seeded with master. An empty master is
// replaced by a random one, giving a scheme nobody else can agree with.
func NewDevScheme(master []byte) (*DevScheme, error) {
	if len(master) == 0 {
		master = make([]byte, keyBytes)
		if _, err := rand.Read(master); err != nil {
			return nil, err
		}
	}
	m := make([]byte, len(master))
	copy(m, master)
	return &DevScheme{master: m}, nil
}

// derive expands the master secret for one (label, principal, epoch) triple.
func (s *DevScheme) derive(label, principal string, epoch domain.Epoch) ([]byte, error) {
	info := fmt.Sprintf("%s|%s|%d", label, principal, epoch)
	r := hkdf.New(sha256.New, s.master, nil, []byte(info))
	key := make([]byte, keyBytes)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ExtractSignatureKey returns the signing key for (principal, epoch).
func (s *DevScheme) ExtractSignatureKey(_ context.Context, principal string, epoch domain.Epoch) ([]byte, error) {
	return s.derive("sig", principal, epoch)
}

// ExtractEncryptionKey returns the decryption key for (principal, epoch).
func (s *DevScheme) ExtractEncryptionKey(_ context.Context, principal string, epoch domain.Epoch) ([]byte, error) {
	return s.derive("enc", principal, epoch)
}

// Encrypt seals plaintext to (principal, epoch). The nonce is prepended to
// the ciphertext.
func (s *DevScheme) Encrypt(principal string, epoch domain.Epoch, plaintext []byte) ([]byte, error) {
	key, err := s.derive("enc", principal, epoch)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the extracted key.
func (s *DevScheme) Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSize {
		return nil, errors.New("ciphertext too short")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce, ct := ciphertext[:chacha20poly1305.NonceSize], ciphertext[chacha20poly1305.NonceSize:]
	return aead.Open(nil, nonce, ct, nil)
}

// Sign produces an HMAC tag over message with the extracted signing key.
func (s *DevScheme) Sign(key, message []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil), nil
}

// Verify checks a tag produced by Sign against (principal, epoch).
func (s *DevScheme) Verify(principal string, epoch domain.Epoch, message, signature []byte) error {
	key, err := s.derive("sig", principal, epoch)
	if err != nil {
		return err
	}
	defer Wipe(key)

	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return ErrBadSignature
	}
	return nil
}

// Compile-time assertion that DevScheme implements domain.Scheme.
var _ domain.Scheme = (*DevScheme)(nil)
