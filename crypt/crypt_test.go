package crypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopBicrypterRoundTrip(t *testing.T) {
	b := NoopBicrypter{}
	ad, err := b.NewAssociatedData()
	require.NoError(t, err)
	assert.False(t, ad.HasNonce())

	plaintext := []byte("hello world")
	ciphertext, err := b.Encrypt(plaintext, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, ciphertext)

	got, err := b.Decrypt(ciphertext, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	b, err := NewAESGCM(key)
	require.NoError(t, err)

	ad, err := b.NewAssociatedData()
	require.NoError(t, err)
	require.True(t, ad.HasNonce())

	plaintext := []byte("secret payload")
	ciphertext, err := b.Encrypt(plaintext, ad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := b.Decrypt(ciphertext, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestAESGCMRejectsWrongNonce(t *testing.T) {
	key := make([]byte, 32)
	b, err := NewAESGCM(key)
	require.NoError(t, err)

	ad1, _ := b.NewAssociatedData()
	ciphertext, err := b.Encrypt([]byte("data"), ad1)
	require.NoError(t, err)

	ad2, _ := b.NewAssociatedData()
	_, err = b.Decrypt(ciphertext, ad2)
	assert.Error(t, err)
}

func TestChaCha20Poly1305RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	b, err := NewChaCha20Poly1305(key)
	require.NoError(t, err)

	ad, err := b.NewAssociatedData()
	require.NoError(t, err)

	plaintext := []byte("another payload")
	ciphertext, err := b.Encrypt(plaintext, ad)
	require.NoError(t, err)

	got, err := b.Decrypt(ciphertext, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestReplayGuardedDecrypterRejectsReplay(t *testing.T) {
	key := make([]byte, 32)
	b, err := NewAESGCM(key)
	require.NoError(t, err)

	guarded, err := NewReplayGuardedDecrypter(b, 16)
	require.NoError(t, err)

	ad, _ := b.NewAssociatedData()
	ciphertext, err := b.Encrypt([]byte("data"), ad)
	require.NoError(t, err)

	_, err = guarded.Decrypt(ciphertext, ad)
	require.NoError(t, err)

	_, err = guarded.Decrypt(ciphertext, ad)
	assert.Error(t, err)
	var nonceErr NonceAlreadyUsedError
	assert.ErrorAs(t, err, &nonceErr)
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New("rot13", nil)
	assert.Error(t, err)
}
