// Package wire implements the packet codec and secure-wire pipeline: the
// atomic Packet type, its disassembler/assembler, and the OutputProcessor/
// InputProcessor that sit between application messages and the transport.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coldbound/overthere/auth"
)

// EncryptionKind discriminates the witness carried by a Final packet.
type EncryptionKind uint8

const (
	// EncryptionNone means the message was not encrypted.
	EncryptionNone EncryptionKind = iota
	// EncryptionWithoutNonce means the message was encrypted under a cipher
	// that needs no associated nonce.
	EncryptionWithoutNonce
	// EncryptionWithNonce means the message was encrypted under the
	// accompanying Nonce.
	EncryptionWithNonce
)

// EncryptionWitness is the minimal record needed to reconstruct the AEAD
// associated data at the receiver. Only the Final packet in a group carries
// one; it is the empty value on every other packet.
type EncryptionWitness struct {
	Kind  EncryptionKind
	Nonce []byte
}

// Packet is the atomic on-wire unit: a fragment of an encrypted message,
// grouped with its siblings by GroupID and signed independently.
type Packet struct {
	GroupID    uint32
	Index      uint32
	Final      bool
	Encryption EncryptionWitness // meaningful only when Final
	Signature  auth.Digest
	Payload    []byte
}

// IsMultipart reports whether this packet is part of a group of more than
// one packet (mirrors the original implementation's is_multipart check).
func (p Packet) IsMultipart() bool {
	return p.Index > 0 || !p.Final
}

// signedBytes returns the exact byte string a Signer/Verifier operates on:
// the packet's metadata concatenated with its payload, per spec.
func (p Packet) signedBytes() []byte {
	meta := metadataBytes(p.GroupID, p.Index, p.Final, p.Encryption)
	out := make([]byte, 0, len(meta)+len(p.Payload))
	out = append(out, meta...)
	out = append(out, p.Payload...)
	return out
}

func metadataBytes(groupID, index uint32, final bool, enc EncryptionWitness) []byte {
	b := make([]byte, 0, 16)
	b = appendUint32(b, groupID)
	b = appendUint32(b, index)
	if final {
		b = append(b, 1, byte(enc.Kind))
		b = append(b, enc.Nonce...)
	} else {
		b = append(b, 0)
	}
	return b
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Sign computes and attaches this packet's signature using signer.
func (p *Packet) Sign(signer auth.Signer) {
	p.Signature = signer.Sign(p.signedBytes())
}

// Verify checks this packet's signature using verifier.
func (p Packet) Verify(verifier auth.Verifier) bool {
	return verifier.Verify(p.signedBytes(), p.Signature)
}

// wirePacket is the CBOR-serializable shape of Packet. Field keys are small
// integers (keyasint) to keep the encoding compact, since the disassembler's
// chunk-size convergence is sensitive to per-field overhead.
type wirePacket struct {
	GroupID   uint32 `cbor:"1,keyasint"`
	Index     uint32 `cbor:"2,keyasint"`
	Final     bool   `cbor:"3,keyasint"`
	EncKind   uint8  `cbor:"4,keyasint"`
	Nonce     []byte `cbor:"5,keyasint,omitempty"`
	Signature []byte `cbor:"6,keyasint"`
	Payload   []byte `cbor:"7,keyasint"`
}

// Encode serializes the packet to its self-describing binary form.
func (p Packet) Encode() ([]byte, error) {
	w := wirePacket{
		GroupID:   p.GroupID,
		Index:     p.Index,
		Final:     p.Final,
		EncKind:   uint8(p.Encryption.Kind),
		Nonce:     p.Encryption.Nonce,
		Signature: p.Signature.Bytes(),
		Payload:   p.Payload,
	}
	b, err := cbor.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("wire: encode packet: %w", err)
	}
	return b, nil
}

// DecodePacket deserializes bytes produced by Packet.Encode.
func DecodePacket(b []byte) (Packet, error) {
	var w wirePacket
	if err := cbor.Unmarshal(b, &w); err != nil {
		return Packet{}, DecodeError{Cause: err}
	}
	digest, err := auth.DigestFromBytes(w.Signature)
	if err != nil {
		return Packet{}, DecodeError{Cause: err}
	}
	return Packet{
		GroupID: w.GroupID,
		Index:   w.Index,
		Final:   w.Final,
		Encryption: EncryptionWitness{
			Kind:  EncryptionKind(w.EncKind),
			Nonce: w.Nonce,
		},
		Signature: digest,
		Payload:   w.Payload,
	}, nil
}
