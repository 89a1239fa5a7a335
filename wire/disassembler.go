package wire

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/coldbound/overthere/auth"
)

// overheadKey identifies a configuration the Disassembler has already
// measured the empirical per-packet overhead for, per the design note that
// overhead is cached by (encryption witness, signer output size) since the
// tagged binary format's length fields are variable-width.
type overheadKey struct {
	encKind    EncryptionKind
	nonceLen   int
	digestSize int
}

// Disassembler splits a byte payload into an ordered sequence of signed
// Packets no larger than a configured budget. It remembers, per
// configuration, how much per-packet overhead the wire encoding costs so
// repeated calls converge in one trial instead of many.
type Disassembler struct {
	mu       sync.Mutex
	overhead map[overheadKey]int
}

// NewDisassembler returns a ready-to-use Disassembler.
func NewDisassembler() *Disassembler {
	return &Disassembler{overhead: make(map[overheadKey]int)}
}

// MakePackets fragments payload into one or more Packets sharing a freshly
// drawn group id, each signed with signer, such that every encoded packet
// is at most maxPacketBytes. It fails with DesiredChunkSizeTooSmallError if
// maxPacketBytes cannot fit even one payload byte once overhead is
// accounted for.
func (d *Disassembler) MakePackets(witness EncryptionWitness, payload []byte, maxPacketBytes int, signer auth.Signer) ([]Packet, error) {
	groupID, err := randomUint32()
	if err != nil {
		return nil, err
	}

	key := overheadKey{
		encKind:    witness.Kind,
		nonceLen:   len(witness.Nonce),
		digestSize: len(signer.Sign(nil).Bytes()),
	}

	chunkSize := maxPacketBytes - d.overheadFor(key, witness, signer, maxPacketBytes)
	for {
		if chunkSize <= 0 {
			return nil, DesiredChunkSizeTooSmallError{
				Requested:   maxPacketBytes,
				MinRequired: d.overheadFor(key, witness, signer, maxPacketBytes) + 1,
			}
		}

		packets := chunkAndSign(groupID, witness, payload, chunkSize, signer)
		measured, ok := fitsBudget(packets, maxPacketBytes)
		if ok {
			d.remember(key, maxPacketBytes-chunkSize)
			return packets, nil
		}
		// Shrink by the observed overrun and retry; the cached overhead is
		// updated only once a trial fits.
		overrun := measured - maxPacketBytes
		if overrun < 1 {
			overrun = 1
		}
		chunkSize -= overrun
	}
}

func (d *Disassembler) overheadFor(key overheadKey, witness EncryptionWitness, signer auth.Signer, maxPacketBytes int) int {
	d.mu.Lock()
	if v, ok := d.overhead[key]; ok {
		d.mu.Unlock()
		return v
	}
	d.mu.Unlock()

	// No measurement yet: probe with an empty-payload Final packet.
	probe := Packet{GroupID: 0, Index: 0, Final: true, Encryption: witness}
	probe.Sign(signer)
	encoded, err := probe.Encode()
	overhead := 24 // conservative fallback if probing itself fails
	if err == nil {
		overhead = len(encoded)
	}
	d.remember(key, overhead)
	return overhead
}

func (d *Disassembler) remember(key overheadKey, overhead int) {
	d.mu.Lock()
	d.overhead[key] = overhead
	d.mu.Unlock()
}

func chunkAndSign(groupID uint32, witness EncryptionWitness, payload []byte, chunkSize int, signer auth.Signer) []Packet {
	if len(payload) == 0 {
		p := Packet{GroupID: groupID, Index: 0, Final: true, Encryption: witness}
		p.Sign(signer)
		return []Packet{p}
	}

	totalChunks := (len(payload) + chunkSize - 1) / chunkSize
	packets := make([]Packet, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		isLast := i+1 == totalChunks
		p := Packet{
			GroupID: groupID,
			Index:   uint32(i),
			Final:   isLast,
			Payload: payload[start:end],
		}
		if isLast {
			p.Encryption = witness
		}
		p.Sign(signer)
		packets = append(packets, p)
	}
	return packets
}

// fitsBudget reports whether every packet encodes to at most maxPacketBytes,
// along with the largest encoded size actually observed (used to decide how
// far to shrink on the next trial).
func fitsBudget(packets []Packet, maxPacketBytes int) (largest int, ok bool) {
	ok = true
	for _, p := range packets {
		encoded, err := p.Encode()
		size := len(encoded)
		if err != nil {
			// Treat an encode failure conservatively: force another shrink.
			size = maxPacketBytes + 1
		}
		if size > largest {
			largest = size
		}
		if size > maxPacketBytes {
			ok = false
		}
	}
	return largest, ok
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
