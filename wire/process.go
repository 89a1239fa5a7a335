package wire

import (
	"fmt"
	"time"

	"github.com/coldbound/overthere/auth"
	"github.com/coldbound/overthere/crypt"
)

// OutputProcessor turns an application payload into one or more wire-ready
// packet byte strings: encrypt, fragment, sign, serialize. It bundles a
// Signer and an Encrypter the way the original transceiver context bundled
// an Authenticator and a Bicrypter generically.
type OutputProcessor struct {
	Signer         auth.Signer
	Encrypter      crypt.Encrypter
	MaxPacketBytes int
	disassembler   *Disassembler
}

// NewOutputProcessor builds an OutputProcessor bound to one signer/encrypter
// pair and one packet-size budget.
func NewOutputProcessor(signer auth.Signer, encrypter crypt.Encrypter, maxPacketBytes int) *OutputProcessor {
	return &OutputProcessor{
		Signer:         signer,
		Encrypter:      encrypter,
		MaxPacketBytes: maxPacketBytes,
		disassembler:   NewDisassembler(),
	}
}

// Process encrypts payload, fragments the ciphertext, signs every fragment,
// and returns each fragment's serialized bytes in order.
func (o *OutputProcessor) Process(payload []byte) ([][]byte, error) {
	ad, err := o.Encrypter.NewAssociatedData()
	if err != nil {
		return nil, fmt.Errorf("wire: output: new associated data: %w", err)
	}

	ciphertext, err := o.Encrypter.Encrypt(payload, ad)
	if err != nil {
		return nil, fmt.Errorf("wire: output: encrypt: %w", err)
	}

	witness := witnessFromAssociatedData(ad)

	packets, err := o.disassembler.MakePackets(witness, ciphertext, o.MaxPacketBytes, o.Signer)
	if err != nil {
		return nil, fmt.Errorf("wire: output: disassemble: %w", err)
	}

	out := make([][]byte, 0, len(packets))
	for _, p := range packets {
		b, err := p.Encode()
		if err != nil {
			return nil, fmt.Errorf("wire: output: encode packet: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// InputProcessor reverses OutputProcessor: deserialize, verify, reassemble,
// decrypt. One InputProcessor exists per peer (per connection on TCP, per
// remote address on UDP).
type InputProcessor struct {
	Verifier  auth.Verifier
	Decrypter crypt.Decrypter
	assembler *Assembler
}

// NewInputProcessor builds an InputProcessor with its own assembler state,
// evicting incomplete groups after packetTTL.
func NewInputProcessor(verifier auth.Verifier, decrypter crypt.Decrypter, packetTTL time.Duration) *InputProcessor {
	return &InputProcessor{
		Verifier:  verifier,
		Decrypter: decrypter,
		assembler: NewAssembler(packetTTL),
	}
}

// Process deserializes one packet's bytes, verifies its signature, and
// admits it into the assembler. It returns (plaintext, true, nil) once the
// packet completes its group; otherwise (nil, false, nil) with no error,
// since an incomplete group is the expected steady state, not a failure.
func (ip *InputProcessor) Process(b []byte) ([]byte, bool, error) {
	p, err := DecodePacket(b)
	if err != nil {
		return nil, false, err
	}

	if !p.Verify(ip.Verifier) {
		return nil, false, ErrSignatureMismatch
	}

	if err := ip.assembler.Add(p); err != nil {
		return nil, false, err
	}

	if !ip.assembler.IsComplete(p.GroupID) {
		return nil, false, nil
	}

	ciphertext, witness, err := ip.assembler.Assemble(p.GroupID)
	if err != nil {
		return nil, false, err
	}

	ad := witness.associatedData()
	plaintext, err := ip.Decrypter.Decrypt(ciphertext, ad)
	if err != nil {
		return nil, false, fmt.Errorf("wire: input: decrypt: %w", err)
	}
	return plaintext, true, nil
}

// Sweep evicts stale incomplete groups; call periodically alongside the
// server's cleanup loop.
func (ip *InputProcessor) Sweep() { ip.assembler.Sweep() }

func witnessFromAssociatedData(ad crypt.AssociatedData) EncryptionWitness {
	if !ad.HasNonce() {
		return EncryptionWitness{Kind: EncryptionNone}
	}
	return EncryptionWitness{Kind: EncryptionWithNonce, Nonce: ad.Nonce}
}

func (w EncryptionWitness) associatedData() crypt.AssociatedData {
	switch w.Kind {
	case EncryptionWithNonce:
		return crypt.AssociatedData{Nonce: w.Nonce}
	case EncryptionWithoutNonce:
		return crypt.AssociatedData{}
	default:
		return crypt.AssociatedData{}
	}
}
