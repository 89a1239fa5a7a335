package crypt

import (
	"encoding/base64"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ReplayGuardedDecrypter wraps a Decrypter with a bounded LRU of recently
// seen nonces, rejecting replay with NonceAlreadyUsedError. Capacity and
// eviction policy are fixed at construction, as required by the decrypter
// contract.
type ReplayGuardedDecrypter struct {
	inner Decrypter
	mu    sync.Mutex
	seen  *simplelru.LRU[string, struct{}]
}

// NewReplayGuardedDecrypter builds a nonce-replay guard around inner with
// room for capacity distinct nonces before the oldest is evicted.
func NewReplayGuardedDecrypter(inner Decrypter, capacity int) (*ReplayGuardedDecrypter, error) {
	lru, err := simplelru.NewLRU[string, struct{}](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &ReplayGuardedDecrypter{inner: inner, seen: lru}, nil
}

func (g *ReplayGuardedDecrypter) Decrypt(ciphertext []byte, ad AssociatedData) ([]byte, error) {
	if ad.HasNonce() {
		key := base64.RawStdEncoding.EncodeToString(ad.Nonce)
		g.mu.Lock()
		_, seen := g.seen.Get(key)
		if seen {
			g.mu.Unlock()
			return nil, NonceAlreadyUsedError{Nonce: ad.Nonce}
		}
		g.seen.Add(key, struct{}{})
		g.mu.Unlock()
	}
	return g.inner.Decrypt(ciphertext, ad)
}

var _ Decrypter = (*ReplayGuardedDecrypter)(nil)
