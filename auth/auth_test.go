package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopAuthenticatorAlwaysVerifies(t *testing.T) {
	a := NoopAuthenticator{}
	sig := a.Sign([]byte("hello"))
	assert.True(t, a.Verify([]byte("anything"), sig))
	assert.Len(t, sig.Bytes(), 32)
}

func TestSha256AuthenticatorProduces32ByteDigest(t *testing.T) {
	a := NewSha256Authenticator([]byte("key"))
	sig := a.Sign([]byte("message"))
	assert.Len(t, sig.Bytes(), 32)
	assert.True(t, a.Verify([]byte("message"), sig))
}

func TestSha512AuthenticatorProduces64ByteDigest(t *testing.T) {
	a := NewSha512Authenticator([]byte("key"))
	sig := a.Sign([]byte("message"))
	assert.Len(t, sig.Bytes(), 64)
	assert.True(t, a.Verify([]byte("message"), sig))
}

func TestVerifyRejectsBadKey(t *testing.T) {
	good := NewSha256Authenticator([]byte("key"))
	bad := NewSha256Authenticator([]byte("wrong-key"))
	sig := good.Sign([]byte("message"))
	assert.False(t, bad.Verify([]byte("message"), sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	a := NewSha256Authenticator([]byte("key"))
	sig := a.Sign([]byte("message"))
	assert.False(t, a.Verify([]byte("tampered"), sig))
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New("md5", nil)
	assert.Error(t, err)
}

func TestDigestFromBytesRejectsOddLength(t *testing.T) {
	_, err := DigestFromBytes(make([]byte, 10))
	assert.Error(t, err)
}
