package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
)

// Signer produces a Digest over an arbitrary message.
type Signer interface {
	Sign(message []byte) Digest
}

// Verifier checks a Digest produced by a corresponding Signer.
type Verifier interface {
	Verify(message []byte, signature Digest) bool
}

// Authenticator is both halves; every concrete implementation below
// satisfies it, and the wire package is generic over it.
type Authenticator interface {
	Signer
	Verifier
}

// NoopAuthenticator signs nothing and accepts everything. It exists so the
// wire pipeline can run unauthenticated without special-casing its callers.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Sign([]byte) Digest         { return zeroDigest256() }
func (NoopAuthenticator) Verify([]byte, Digest) bool { return true }

// Sha256Authenticator signs with HMAC-SHA256 under a pre-shared key.
type Sha256Authenticator struct {
	Key []byte
}

func NewSha256Authenticator(key []byte) Sha256Authenticator {
	return Sha256Authenticator{Key: key}
}

func (a Sha256Authenticator) Sign(message []byte) Digest {
	mac := hmac.New(sha256.New, a.Key)
	mac.Write(message)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return NewDigest256(out)
}

func (a Sha256Authenticator) Verify(message []byte, signature Digest) bool {
	expected := a.Sign(message)
	return hmac.Equal(expected.Bytes(), signature.Bytes())
}

// Sha512Authenticator signs with HMAC-SHA512 under a pre-shared key.
type Sha512Authenticator struct {
	Key []byte
}

func NewSha512Authenticator(key []byte) Sha512Authenticator {
	return Sha512Authenticator{Key: key}
}

func (a Sha512Authenticator) Sign(message []byte) Digest {
	mac := hmac.New(sha512.New, a.Key)
	mac.Write(message)
	var out [64]byte
	copy(out[:], mac.Sum(nil))
	return NewDigest512(out)
}

func (a Sha512Authenticator) Verify(message []byte, signature Digest) bool {
	expected := a.Sign(message)
	return hmac.Equal(expected.Bytes(), signature.Bytes())
}

// New builds an Authenticator from the CLI's --auth flag value and key.
// alg must be one of "none", "sha256", "sha512".
func New(alg string, key []byte) (Authenticator, error) {
	switch alg {
	case "", "none":
		return NoopAuthenticator{}, nil
	case "sha256":
		return NewSha256Authenticator(key), nil
	case "sha512":
		return NewSha512Authenticator(key), nil
	default:
		return nil, ErrUnknownAlgorithm{Algorithm: alg}
	}
}

// ErrUnknownAlgorithm is returned by New for an unrecognized --auth value.
type ErrUnknownAlgorithm struct {
	Algorithm string
}

func (e ErrUnknownAlgorithm) Error() string {
	return "auth: unknown algorithm " + e.Algorithm
}

var (
	_ Authenticator = NoopAuthenticator{}
	_ Authenticator = Sha256Authenticator{}
	_ Authenticator = Sha512Authenticator{}
)
