package wire

import (
	"sync"
	"time"
)

// group holds the partial state of one in-flight message reassembly.
type group struct {
	packets   map[uint32]Packet
	lastIndex *uint32
	witness   EncryptionWitness
	created   time.Time
}

func newGroup(now time.Time) *group {
	return &group{packets: make(map[uint32]Packet), created: now}
}

func (g *group) isComplete() bool {
	if g.lastIndex == nil {
		return false
	}
	return len(g.packets) == int(*g.lastIndex)+1
}

// Assembler collects Packets by GroupID, detects when a group is complete,
// and evicts groups that sit unfinished for longer than a configured TTL.
// Eviction is lazy (every Add first discards all expired groups) plus an
// optional periodic
// Sweep, per the design note preferring lazy-plus-single-sweeper eviction
// over a dedicated sweeper goroutine per map.
type Assembler struct {
	mu     sync.Mutex
	groups map[uint32]*group
	ttl    time.Duration
	now    func() time.Time
}

// NewAssembler builds an Assembler that discards any group older than ttl.
func NewAssembler(ttl time.Duration) *Assembler {
	return &Assembler{
		groups: make(map[uint32]*group),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Add admits one packet into its group, creating the group on first sight.
func (a *Assembler) Add(p Packet) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for id, old := range a.groups {
		if now.Sub(old.created) > a.ttl {
			delete(a.groups, id)
		}
	}
	g, ok := a.groups[p.GroupID]
	if !ok {
		g = newGroup(now)
		a.groups[p.GroupID] = g
	}

	if _, exists := g.packets[p.Index]; exists {
		return PacketExistsError{GroupID: p.GroupID, Index: p.Index}
	}

	if p.Final {
		if g.lastIndex != nil {
			return FinalPacketAlreadyExistsError{GroupID: p.GroupID}
		}
		idx := p.Index
		g.lastIndex = &idx
		g.witness = p.Encryption
	} else if g.lastIndex != nil && p.Index > *g.lastIndex {
		return PacketBeyondLastIndexError{GroupID: p.GroupID, Index: p.Index, LastIndex: *g.lastIndex}
	}

	g.packets[p.Index] = p
	return nil
}

// IsComplete reports whether groupID holds every packet from 0 to its
// recorded last index.
func (a *Assembler) IsComplete(groupID uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[groupID]
	if !ok {
		return false
	}
	return g.isComplete()
}

// Assemble concatenates a complete group's payloads in index order and
// removes the group from the assembler. It fails with
// ErrIncompletePacketCollection if the group is missing or not yet complete.
func (a *Assembler) Assemble(groupID uint32) ([]byte, EncryptionWitness, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[groupID]
	if !ok || !g.isComplete() {
		return nil, EncryptionWitness{}, ErrIncompletePacketCollection
	}

	total := 0
	for i := 0; i <= int(*g.lastIndex); i++ {
		total += len(g.packets[uint32(i)].Payload)
	}
	buf := make([]byte, 0, total)
	for i := 0; i <= int(*g.lastIndex); i++ {
		buf = append(buf, g.packets[uint32(i)].Payload...)
	}

	witness := g.witness
	delete(a.groups, groupID)
	return buf, witness, nil
}

// Sweep evicts every group older than the configured TTL. Call it
// periodically to bound memory even for group ids that never receive
// another packet after going stale.
func (a *Assembler) Sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for id, g := range a.groups {
		if now.Sub(g.created) > a.ttl {
			delete(a.groups, id)
		}
	}
}

// Len reports the number of groups currently tracked; exposed for tests and
// diagnostics, not part of the core contract.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}
