package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbound/overthere/auth"
	"github.com/coldbound/overthere/crypt"
)

func TestPacketRoundTripEncoding(t *testing.T) {
	signer := auth.NewSha256Authenticator([]byte("k"))
	p := Packet{GroupID: 42, Index: 1, Final: true, Payload: []byte("hello")}
	p.Sign(signer)

	b, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodePacket(b)
	require.NoError(t, err)
	assert.Equal(t, p.GroupID, decoded.GroupID)
	assert.Equal(t, p.Index, decoded.Index)
	assert.Equal(t, p.Final, decoded.Final)
	assert.Equal(t, p.Payload, decoded.Payload)
	assert.True(t, decoded.Verify(signer))
}

func TestVerifyFailsOnTamperedPayload(t *testing.T) {
	signer := auth.NewSha256Authenticator([]byte("k"))
	p := Packet{GroupID: 1, Index: 0, Final: true, Payload: []byte("hello")}
	p.Sign(signer)
	p.Payload = []byte("world")
	assert.False(t, p.Verify(signer))
}

func TestDisassemblerProducesSinglePacketWhenDataFits(t *testing.T) {
	d := NewDisassembler()
	signer := auth.NoopAuthenticator{}
	packets, err := d.MakePackets(EncryptionWitness{}, []byte("ab"), 256, signer)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.True(t, packets[0].Final)
	assert.Equal(t, uint32(0), packets[0].Index)
	assert.False(t, packets[0].IsMultipart())
}

func TestDisassemblerProducesMultiplePacketsWhenDataDoesNotFit(t *testing.T) {
	d := NewDisassembler()
	signer := auth.NoopAuthenticator{}
	payload := make([]byte, 5000)
	packets, err := d.MakePackets(EncryptionWitness{}, payload, 256, signer)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	for i, p := range packets {
		encoded, err := p.Encode()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(encoded), 256)
		assert.Equal(t, uint32(i), p.Index)
		assert.Equal(t, i == len(packets)-1, p.Final)
	}
}

func TestDisassemblerFailsWhenBudgetTooSmall(t *testing.T) {
	d := NewDisassembler()
	signer := auth.NewSha512Authenticator([]byte("k"))
	_, err := d.MakePackets(EncryptionWitness{}, []byte("x"), 1, signer)
	var tooSmall DesiredChunkSizeTooSmallError
	assert.ErrorAs(t, err, &tooSmall)
}

func TestAssemblerRejectsDuplicateIndex(t *testing.T) {
	a := NewAssembler(time.Minute)
	p := Packet{GroupID: 1, Index: 0, Final: true}
	require.NoError(t, a.Add(p))
	err := a.Add(p)
	assert.True(t, IsPacketExists(err))
}

func TestAssemblerRejectsSecondFinalPacket(t *testing.T) {
	a := NewAssembler(time.Minute)
	require.NoError(t, a.Add(Packet{GroupID: 1, Index: 0, Final: true}))
	err := a.Add(Packet{GroupID: 1, Index: 1, Final: true})
	assert.True(t, IsFinalPacketAlreadyExists(err))
}

func TestAssemblerRejectsIndexBeyondLast(t *testing.T) {
	a := NewAssembler(time.Minute)
	require.NoError(t, a.Add(Packet{GroupID: 1, Index: 0, Final: true}))
	err := a.Add(Packet{GroupID: 1, Index: 5})
	assert.True(t, IsPacketBeyondLastIndex(err))
}

func TestAssemblerCompletesAndAssemblesInOrder(t *testing.T) {
	a := NewAssembler(time.Minute)
	require.NoError(t, a.Add(Packet{GroupID: 7, Index: 1, Payload: []byte("world")}))
	assert.False(t, a.IsComplete(7))
	require.NoError(t, a.Add(Packet{GroupID: 7, Index: 0, Final: false, Payload: []byte("hello ")}))
	require.NoError(t, a.Add(Packet{GroupID: 7, Index: 2, Final: true, Payload: []byte("!")}))
	require.True(t, a.IsComplete(7))

	data, _, err := a.Assemble(7)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(data))
	assert.Equal(t, 0, a.Len())
}

func TestAssemblerEvictsExpiredGroups(t *testing.T) {
	a := NewAssembler(time.Millisecond)
	fakeNow := time.Now()
	a.now = func() time.Time { return fakeNow }
	require.NoError(t, a.Add(Packet{GroupID: 1, Index: 0}))

	fakeNow = fakeNow.Add(time.Second)
	a.Sweep()
	assert.Equal(t, 0, a.Len())
}

func TestOutputInputProcessorRoundTrip(t *testing.T) {
	signer := auth.NewSha256Authenticator([]byte("key"))
	bicrypter, err := crypt.NewAESGCM(make([]byte, 32))
	require.NoError(t, err)

	out := NewOutputProcessor(signer, bicrypter, 128)
	in := NewInputProcessor(signer, bicrypter, time.Minute)

	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for length")
	frames, err := out.Process(payload)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	var got []byte
	for _, f := range frames {
		plaintext, done, err := in.Process(f)
		require.NoError(t, err)
		if done {
			got = plaintext
		}
	}
	assert.Equal(t, payload, got)
}

func TestInputProcessorRejectsTamperedPacket(t *testing.T) {
	signer := auth.NewSha256Authenticator([]byte("key"))
	bicrypter := crypt.NoopBicrypter{}

	out := NewOutputProcessor(signer, bicrypter, 512)
	in := NewInputProcessor(signer, bicrypter, time.Minute)

	frames, err := out.Process([]byte("short"))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	tampered, err := DecodePacket(frames[0])
	require.NoError(t, err)
	tampered.Payload = []byte("SHORT")
	reEncoded, err := tampered.Encode()
	require.NoError(t, err)

	_, _, err = in.Process(reEncoded)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}
