package message

// ReplyKind discriminates the Reply variants. It mirrors RequestKind for
// every successful-completion reply and adds Error for the error variant.
type ReplyKind string

const (
	KindHeartbeatReply    ReplyKind = "heartbeat"
	KindVersionReply      ReplyKind = "version"
	KindCapabilitiesReply ReplyKind = "capabilities"
	KindInternalDebugReply ReplyKind = "internal_debug"

	KindDirCreated             ReplyKind = "dir_created"
	KindDirRenamed             ReplyKind = "dir_renamed"
	KindDirRemoved             ReplyKind = "dir_removed"
	KindDirContentsList        ReplyKind = "dir_contents_list"
	KindFileOpened             ReplyKind = "file_opened"
	KindFileClosed             ReplyKind = "file_closed"
	KindUnopenedFileRenamed    ReplyKind = "unopened_file_renamed"
	KindFileRenamed            ReplyKind = "file_renamed"
	KindUnopenedFileRemoved    ReplyKind = "unopened_file_removed"
	KindFileRemoved            ReplyKind = "file_removed"
	KindFileContents           ReplyKind = "file_contents"
	KindFileWritten            ReplyKind = "file_written"

	KindProcStarted      ReplyKind = "proc_started"
	KindStdinWritten     ReplyKind = "stdin_written"
	KindStdoutContents   ReplyKind = "stdout_contents"
	KindStderrContents   ReplyKind = "stderr_contents"
	KindProcStatus       ReplyKind = "proc_status"

	KindBatchResult    ReplyKind = "batch_result"
	KindSequenceResult ReplyKind = "sequence_result"
	KindForwardReply   ReplyKind = "forward_reply"
	KindCustomReply    ReplyKind = "custom_reply"

	KindError ReplyKind = "error"
)

// ErrorKind distinguishes the handler-error taxonomy carried by a Reply
// whose Kind is KindError.
type ErrorKind string

const (
	ErrGeneric        ErrorKind = "generic"
	ErrIO             ErrorKind = "io"
	ErrFileSigChanged ErrorKind = "file_sig_changed"
)

// Reply is the server's answer to a Request. ErrorKind is only meaningful
// when Kind == KindError.
type Reply struct {
	Kind      ReplyKind   `cbor:"1,keyasint"`
	ErrorKind ErrorKind   `cbor:"3,keyasint,omitempty"`
	Args      interface{} `cbor:"2,keyasint,omitempty"`
}

// --- success-reply argument records ---

type VersionReplyArgs struct{ Version string }
type CapabilitiesReplyArgs struct{ Capabilities []string }

type DirCreatedArgs struct{ Path string }
type DirRenamedArgs struct{ From, To string }
type DirRemovedArgs struct{ Path string }
type DirContentsListArgs struct {
	Path    string
	Entries []DirEntry
}
type FileOpenedArgs struct {
	ID    uint32
	Sig   uint32
	Path  string
	Read  bool
	Write bool
}
type FileClosedArgs struct{ ID uint32 }
type UnopenedFileRenamedArgs struct{ From, To string }
type FileRenamedArgs struct {
	Sig uint32
	To  string
}
type UnopenedFileRemovedArgs struct{ Path string }
type FileRemovedArgs struct{ Sig uint32 }
type FileContentsArgs struct {
	ID   uint32
	Sig  uint32
	Data []byte
}
type FileWrittenArgs struct {
	ID  uint32
	Sig uint32
}

type ProcStartedArgs struct{ ID uint32 }
type StdinWrittenArgs struct{}
type StdoutContentsArgs struct{ Output []byte }
type StderrContentsArgs struct{ Output []byte }
type ProcStatusArgs struct {
	ID       uint32
	IsAlive  bool
	ExitCode *int32 `cbor:",omitempty"`
}

type BatchResultArgs struct{ Replies []Reply }
type SequenceResultArgs struct{ Replies []Reply }
type ForwardReplyArgs struct{ Inner Reply }
type CustomReplyArgs struct{ Data []byte }

// --- error argument records ---

type GenericErrorArgs struct{ Msg string }
type IoErrorArgs struct {
	Description string
	OsCode      *int   `cbor:",omitempty"`
	ErrorKind   string `cbor:",omitempty"`
}
type FileSigChangedArgs struct {
	ID     uint32
	NewSig uint32
}

// NewGenericError builds a Reply carrying a GenericErrorArgs.
func NewGenericError(msg string) Reply {
	return Reply{Kind: KindError, ErrorKind: ErrGeneric, Args: GenericErrorArgs{Msg: msg}}
}

// NewIoError builds a Reply carrying an IoErrorArgs.
func NewIoError(description string, errorKind string) Reply {
	return Reply{Kind: KindError, ErrorKind: ErrIO, Args: IoErrorArgs{Description: description, ErrorKind: errorKind}}
}

// NewFileSigChangedError builds a Reply carrying a FileSigChangedArgs.
func NewFileSigChangedError(id, newSig uint32) Reply {
	return Reply{Kind: KindError, ErrorKind: ErrFileSigChanged, Args: FileSigChangedArgs{ID: id, NewSig: newSig}}
}

// IsError reports whether this reply is the Error variant.
func (r Reply) IsError() bool { return r.Kind == KindError }
