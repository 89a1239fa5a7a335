package message

import (
	"reflect"
	"sort"
)

// FieldSchema describes one field of a Request or Reply argument record.
type FieldSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// VariantSchema describes one Request or Reply variant: its wire tag and
// its argument record's fields, if it carries one.
type VariantSchema struct {
	Kind   string        `json:"kind"`
	Fields []FieldSchema `json:"fields,omitempty"`
}

// requestVariants pairs every RequestKind with a zero value of its
// argument record, used only to derive the schema via reflection.
var requestVariants = map[RequestKind]interface{}{
	KindHeartbeat:          nil,
	KindVersion:            nil,
	KindCapabilities:       nil,
	KindInternalDebug:      InternalDebugArgs{},
	KindCustom:             CustomArgs{},
	KindCreateDir:          CreateDirArgs{},
	KindRenameDir:          RenameDirArgs{},
	KindRemoveDir:          RemoveDirArgs{},
	KindListDirContents:    ListDirContentsArgs{},
	KindOpenFile:           OpenFileArgs{},
	KindCloseFile:          CloseFileArgs{},
	KindRenameUnopenedFile: RenameUnopenedFileArgs{},
	KindRenameFile:         RenameFileArgs{},
	KindRemoveUnopenedFile: RemoveUnopenedFileArgs{},
	KindRemoveFile:         RemoveFileArgs{},
	KindReadFile:           ReadFileArgs{},
	KindWriteFile:          WriteFileArgs{},
	KindExecProc:           ExecProcArgs{},
	KindWriteProcStdin:     WriteProcStdinArgs{},
	KindReadProcStdout:     ReadProcStdoutArgs{},
	KindReadProcStderr:     ReadProcStderrArgs{},
	KindKillProc:           KillProcArgs{},
	KindReadProcStatus:     ReadProcStatusArgs{},
	KindSequence:           SequenceArgs{},
	KindBatch:              BatchArgs{},
	KindForward:            ForwardArgs{},
}

// replyVariants mirrors requestVariants for the Reply side. KindError maps
// to nil here; the three error argument records are listed in errorVariants.
var replyVariants = map[ReplyKind]interface{}{
	KindHeartbeatReply:      nil,
	KindVersionReply:        VersionReplyArgs{},
	KindCapabilitiesReply:   CapabilitiesReplyArgs{},
	KindInternalDebugReply:  nil,
	KindDirCreated:          DirCreatedArgs{},
	KindDirRenamed:          DirRenamedArgs{},
	KindDirRemoved:          DirRemovedArgs{},
	KindDirContentsList:     DirContentsListArgs{},
	KindFileOpened:          FileOpenedArgs{},
	KindFileClosed:          FileClosedArgs{},
	KindUnopenedFileRenamed: UnopenedFileRenamedArgs{},
	KindFileRenamed:         FileRenamedArgs{},
	KindUnopenedFileRemoved: UnopenedFileRemovedArgs{},
	KindFileRemoved:         FileRemovedArgs{},
	KindFileContents:        FileContentsArgs{},
	KindFileWritten:         FileWrittenArgs{},
	KindProcStarted:         ProcStartedArgs{},
	KindStdinWritten:        StdinWrittenArgs{},
	KindStdoutContents:      StdoutContentsArgs{},
	KindStderrContents:      StderrContentsArgs{},
	KindProcStatus:          ProcStatusArgs{},
	KindBatchResult:         BatchResultArgs{},
	KindSequenceResult:      SequenceResultArgs{},
	KindForwardReply:        ForwardReplyArgs{},
	KindCustomReply:         CustomReplyArgs{},
	KindError:               nil,
}

func fieldsOf(args interface{}) []FieldSchema {
	if args == nil {
		return nil
	}
	t := reflect.TypeOf(args)
	if t.Kind() != reflect.Struct || t.NumField() == 0 {
		return nil
	}
	fields := make([]FieldSchema, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fields = append(fields, FieldSchema{Name: f.Name, Type: f.Type.String()})
	}
	return fields
}

func sortedSchema(out []VariantSchema) []VariantSchema {
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// RequestSchema returns every Request variant's wire tag and argument
// fields, for the CLI's schema subcommand.
func RequestSchema() []VariantSchema {
	out := make([]VariantSchema, 0, len(requestVariants))
	for kind, args := range requestVariants {
		out = append(out, VariantSchema{Kind: string(kind), Fields: fieldsOf(args)})
	}
	return sortedSchema(out)
}

// ReplySchema returns every Reply variant's wire tag and argument fields,
// for the CLI's schema subcommand.
func ReplySchema() []VariantSchema {
	out := make([]VariantSchema, 0, len(replyVariants))
	for kind, args := range replyVariants {
		out = append(out, VariantSchema{Kind: string(kind), Fields: fieldsOf(args)})
	}
	return sortedSchema(out)
}

// errorVariants pairs every ErrorKind with a zero value of its argument
// record.
var errorVariants = map[ErrorKind]interface{}{
	ErrGeneric:        GenericErrorArgs{},
	ErrIO:             IoErrorArgs{},
	ErrFileSigChanged: FileSigChangedArgs{},
}

// ErrorSchema returns every error kind's argument fields, for the CLI's
// schema subcommand.
func ErrorSchema() []VariantSchema {
	out := make([]VariantSchema, 0, len(errorVariants))
	for kind, args := range errorVariants {
		out = append(out, VariantSchema{Kind: string(kind), Fields: fieldsOf(args)})
	}
	return sortedSchema(out)
}
