// Package message defines the application-level envelope (Msg, Header,
// Content) and the full Request/Reply vocabulary the RPC engine dispatches:
// filesystem verbs, process verbs, composition (Batch/Sequence/Forward),
// Custom, and InternalDebug. Field layouts for the filesystem and process
// verbs are grounded on the original implementation's io/fs and io/proc
// argument records.
package message

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Header uniquely identifies a Msg. Id is drawn at random so that, with
// overwhelming probability, no two in-flight messages share one.
type Header struct {
	ID           uint32    `cbor:"1,keyasint"`
	CreationDate time.Time `cbor:"2,keyasint"`
}

// NewHeader draws a fresh random id and stamps the current time.
func NewHeader() (Header, error) {
	id, err := randomID()
	if err != nil {
		return Header{}, err
	}
	return Header{ID: id, CreationDate: time.Now().UTC()}, nil
}

func randomID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
