// Package crypt provides the message-level AEAD primitives the wire
// pipeline is generic over: Encrypter, Decrypter, and the AssociatedData
// that carries a nonce (or the absence of one) from encryption through to
// the receiver's Final packet metadata.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// AssociatedData is the witness that travels alongside ciphertext so the
// receiver can reconstruct the exact AEAD inputs. It mirrors the wire
// package's Final-packet encryption witness one-to-one.
type AssociatedData struct {
	// Nonce is nil when the cipher needs none (Noop).
	Nonce []byte
}

// None is the associated data produced by a cipher that doesn't use nonces.
func None() AssociatedData { return AssociatedData{} }

// HasNonce reports whether this associated data carries a nonce.
func (a AssociatedData) HasNonce() bool { return len(a.Nonce) > 0 }

// Encrypter produces fresh associated data and encrypts under it.
type Encrypter interface {
	// NewAssociatedData returns the associated data (typically a fresh
	// random nonce) to use for the next message.
	NewAssociatedData() (AssociatedData, error)
	Encrypt(plaintext []byte, ad AssociatedData) ([]byte, error)
}

// Decrypter reverses Encrypter given the associated data recovered from the
// wire.
type Decrypter interface {
	Decrypt(ciphertext []byte, ad AssociatedData) ([]byte, error)
}

// Bicrypter is both halves; the outer boundary builds one concrete
// Bicrypter from CLI configuration and the wire pipeline is generic over it.
type Bicrypter interface {
	Encrypter
	Decrypter
}

// Sentinel errors, matched with errors.Is by callers.
var (
	ErrEncryptFailed  = errors.New("crypt: encryption failed")
	ErrDecryptFailed  = errors.New("crypt: decryption failed")
	ErrNonceWrongSize = errors.New("crypt: nonce has the wrong size for this cipher")
	ErrMissingNonce   = errors.New("crypt: cipher requires a nonce but none was supplied")
)

// NonceAlreadyUsedError is returned by a nonce-cache-wrapped Decrypter when a
// nonce has been seen before (replay).
type NonceAlreadyUsedError struct {
	Nonce []byte
}

func (e NonceAlreadyUsedError) Error() string {
	return fmt.Sprintf("crypt: nonce already used (%d bytes)", len(e.Nonce))
}

// NoopBicrypter passes bytes through unchanged.
type NoopBicrypter struct{}

func (NoopBicrypter) NewAssociatedData() (AssociatedData, error) { return None(), nil }
func (NoopBicrypter) Encrypt(plaintext []byte, _ AssociatedData) ([]byte, error) {
	return plaintext, nil
}
func (NoopBicrypter) Decrypt(ciphertext []byte, _ AssociatedData) ([]byte, error) {
	return ciphertext, nil
}

// aeadBicrypter adapts any cipher.AEAD (AES-GCM, ChaCha20-Poly1305) into a
// Bicrypter. Every supported algorithm here uses a 12-byte random nonce.
type aeadBicrypter struct {
	aead cipher.AEAD
}

func (b aeadBicrypter) NewAssociatedData() (AssociatedData, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return AssociatedData{}, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}
	return AssociatedData{Nonce: nonce}, nil
}

func (b aeadBicrypter) Encrypt(plaintext []byte, ad AssociatedData) ([]byte, error) {
	if !ad.HasNonce() {
		return nil, ErrMissingNonce
	}
	if len(ad.Nonce) != b.aead.NonceSize() {
		return nil, ErrNonceWrongSize
	}
	return b.aead.Seal(nil, ad.Nonce, plaintext, nil), nil
}

func (b aeadBicrypter) Decrypt(ciphertext []byte, ad AssociatedData) ([]byte, error) {
	if !ad.HasNonce() {
		return nil, ErrMissingNonce
	}
	if len(ad.Nonce) != b.aead.NonceSize() {
		return nil, ErrNonceWrongSize
	}
	plaintext, err := b.aead.Open(nil, ad.Nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

// NewAESGCM builds an AES-GCM Bicrypter. key must be 16 bytes (AES-128) or
// 32 bytes (AES-256).
func NewAESGCM(key []byte) (Bicrypter, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypt: aes-gcm key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypt: aes-gcm: %w", err)
	}
	return aeadBicrypter{aead: aead}, nil
}

// NewChaCha20Poly1305 builds a ChaCha20-Poly1305 Bicrypter. key must be 32 bytes.
func NewChaCha20Poly1305(key []byte) (Bicrypter, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypt: chacha20-poly1305: %w", err)
	}
	return aeadBicrypter{aead: aead}, nil
}

// New builds a Bicrypter from the CLI's --enc flag value and key. alg must
// be one of "none", "aes-128-gcm", "aes-256-gcm", "chacha20-poly1305".
func New(alg string, key []byte) (Bicrypter, error) {
	switch alg {
	case "", "none":
		return NoopBicrypter{}, nil
	case "aes-128-gcm", "aes-256-gcm":
		return NewAESGCM(key)
	case "chacha20-poly1305":
		return NewChaCha20Poly1305(key)
	default:
		return nil, fmt.Errorf("crypt: unknown algorithm %q", alg)
	}
}

var (
	_ Bicrypter = NoopBicrypter{}
	_ Bicrypter = aeadBicrypter{}
)
