package message

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Msg is the application unit that flows over the wire once reassembled and
// decrypted. A reply's ParentHeader points back at the request it answers;
// top-level requests carry no ParentHeader.
type Msg struct {
	Header       Header  `cbor:"1,keyasint"`
	ParentHeader *Header `cbor:"2,keyasint,omitempty"`
	Content      Content `cbor:"3,keyasint"`
}

// NewRequestMsg wraps a Request in a freshly headered Msg.
func NewRequestMsg(r Request) (Msg, error) {
	h, err := NewHeader()
	if err != nil {
		return Msg{}, err
	}
	return Msg{Header: h, Content: Content{Request: &r}}, nil
}

// NewReplyMsg wraps a Reply in a freshly headered Msg that answers parent.
func NewReplyMsg(parent Header, r Reply) (Msg, error) {
	h, err := NewHeader()
	if err != nil {
		return Msg{}, err
	}
	return Msg{
		Header:       h,
		ParentHeader: &parent,
		Content:      Content{Reply: &r},
	}, nil
}

// Content is the Request | Reply sum type. Exactly one field is set; Go has
// no enum-of-structs, so the sum is expressed as a struct with one active
// optional field, encoded with omitempty so the inactive side costs nothing
// on the wire.
type Content struct {
	Request *Request `cbor:"1,keyasint,omitempty"`
	Reply   *Reply   `cbor:"2,keyasint,omitempty"`
}

// ToRequest returns the request and true if this content is a request.
func (c Content) ToRequest() (Request, bool) {
	if c.Request == nil {
		return Request{}, false
	}
	return *c.Request, true
}

// ToReply returns the reply and true if this content is a reply.
func (c Content) ToReply() (Reply, bool) {
	if c.Reply == nil {
		return Reply{}, false
	}
	return *c.Reply, true
}

// Encode serializes a Msg to its wire bytes.
func (m Msg) Encode() ([]byte, error) {
	b, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	return b, nil
}

// Decode deserializes bytes produced by Msg.Encode.
func Decode(b []byte) (Msg, error) {
	var m Msg
	if err := cbor.Unmarshal(b, &m); err != nil {
		return Msg{}, fmt.Errorf("message: decode: %w", err)
	}
	return m, nil
}
