package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgEncodeDecodeRoundTrip(t *testing.T) {
	req := Request{Kind: KindOpenFile, Args: OpenFileArgs{Path: "/tmp/x", CreateIfMissing: true, Write: true, Read: true}}
	msg, err := NewRequestMsg(req)
	require.NoError(t, err)

	b, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, msg.Header.ID, decoded.Header.ID)

	gotReq, ok := decoded.Content.ToRequest()
	require.True(t, ok)
	assert.Equal(t, KindOpenFile, gotReq.Kind)

	var args OpenFileArgs
	require.NoError(t, DecodeArgs(gotReq.Args, &args))
	assert.Equal(t, "/tmp/x", args.Path)
	assert.True(t, args.Write)
}

func TestReplyParentHeaderLinksToRequest(t *testing.T) {
	req := Request{Kind: KindHeartbeat}
	msg, err := NewRequestMsg(req)
	require.NoError(t, err)

	reply := Reply{Kind: KindHeartbeatReply}
	replyMsg, err := NewReplyMsg(msg.Header, reply)
	require.NoError(t, err)

	require.NotNil(t, replyMsg.ParentHeader)
	assert.Equal(t, msg.Header.ID, replyMsg.ParentHeader.ID)
	assert.NotEqual(t, uint32(0), replyMsg.Header.ID)
	assert.NotEqual(t, msg.Header.ID, replyMsg.Header.ID)
}

func TestDecodeArgsIsCaseInsensitive(t *testing.T) {
	raw := map[string]interface{}{"path": "/a/b", "nonempty": true}
	var args RemoveDirArgs
	require.NoError(t, DecodeArgs(raw, &args))
	assert.Equal(t, "/a/b", args.Path)
	assert.True(t, args.NonEmpty)
}

func TestTransformRuleSubstitutesFieldFromPriorReply(t *testing.T) {
	opened := Reply{Kind: KindFileOpened, Args: FileOpenedArgs{ID: 7, Sig: 1, Path: "/x"}}

	ltr := LazilyTransformedRequest{
		Request: Request{Kind: KindWriteFile, Args: WriteFileArgs{Data: []byte("hi")}},
		Transforms: []TransformRule{
			{SourceReplyIndex: 0, SourceField: "ID", TargetField: "ID"},
			{SourceReplyIndex: 0, SourceField: "Sig", TargetField: "Sig"},
		},
	}

	resolved, err := ltr.Resolve([]Reply{opened})
	require.NoError(t, err)

	var args WriteFileArgs
	require.NoError(t, DecodeArgs(resolved.Args, &args))
	assert.EqualValues(t, 7, args.ID)
	assert.EqualValues(t, 1, args.Sig)
	assert.Equal(t, []byte("hi"), args.Data)
}

func TestTransformRuleErrorsOnMissingReply(t *testing.T) {
	ltr := LazilyTransformedRequest{
		Request:    Request{Kind: KindReadFile},
		Transforms: []TransformRule{{SourceReplyIndex: 3, SourceField: "ID", TargetField: "ID"}},
	}
	_, err := ltr.Resolve(nil)
	assert.Error(t, err)
}
