package rpc

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/coldbound/overthere/message"
)

// overthereVersion is the protocol version the server reports to Version.
const overthereVersion = "1.0.0"

var serverCapabilities = []string{"custom", "file_system", "exec", "forward"}

// handle routes one Request to its handler and returns the Reply to send
// back. It never panics: a handler-level failure always becomes a
// message.NewGenericError/NewIoError/NewFileSigChangedError reply rather
// than propagating as a Go error, since the wire has no channel for one.
func (s *Server) handle(ctx context.Context, peer string, req message.Request) message.Reply {
	switch req.Kind {
	case message.KindHeartbeat:
		return message.Reply{Kind: message.KindHeartbeatReply}
	case message.KindVersion:
		return message.Reply{Kind: message.KindVersionReply, Args: message.VersionReplyArgs{Version: overthereVersion}}
	case message.KindCapabilities:
		return message.Reply{Kind: message.KindCapabilitiesReply, Args: message.CapabilitiesReplyArgs{Capabilities: serverCapabilities}}
	case message.KindInternalDebug:
		return s.handleInternalDebug()
	case message.KindCustom:
		return s.handleCustom(req)

	case message.KindCreateDir:
		return s.handleCreateDir(req)
	case message.KindRenameDir:
		return s.handleRenameDir(req)
	case message.KindRemoveDir:
		return s.handleRemoveDir(req)
	case message.KindListDirContents:
		return s.handleListDirContents(req)
	case message.KindOpenFile:
		return s.handleOpenFile(peer, req)
	case message.KindCloseFile:
		return s.handleCloseFile(peer, req)
	case message.KindRenameUnopenedFile:
		return s.handleRenameUnopenedFile(req)
	case message.KindRenameFile:
		return s.handleRenameFile(req)
	case message.KindRemoveUnopenedFile:
		return s.handleRemoveUnopenedFile(req)
	case message.KindRemoveFile:
		return s.handleRemoveFile(req)
	case message.KindReadFile:
		return s.handleReadFile(req)
	case message.KindWriteFile:
		return s.handleWriteFile(req)

	case message.KindExecProc:
		return s.handleExecProc(peer, req)
	case message.KindWriteProcStdin:
		return s.handleWriteProcStdin(peer, req)
	case message.KindReadProcStdout:
		return s.handleReadProcStdout(peer, req)
	case message.KindReadProcStderr:
		return s.handleReadProcStderr(peer, req)
	case message.KindKillProc:
		return s.handleKillProc(peer, req)
	case message.KindReadProcStatus:
		return s.handleReadProcStatus(peer, req)

	case message.KindBatch:
		return s.handleBatch(ctx, peer, req)
	case message.KindSequence:
		return s.handleSequence(ctx, peer, req)
	case message.KindForward:
		return s.handleForward(ctx, req)

	default:
		return message.NewGenericError("unknown request kind: " + string(req.Kind))
	}
}

func (s *Server) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.cfg.workingDir, path)
}

// ioErrorReply classifies err against the common os package sentinels so a
// client can distinguish not-found from permission-denied from any other
// failure, matching the original implementation's IOException taxonomy.
func ioErrorReply(err error) message.Reply {
	switch {
	case os.IsNotExist(err):
		return message.NewIoError(err.Error(), "not_found")
	case os.IsPermission(err):
		return message.NewIoError(err.Error(), "permission_denied")
	case os.IsExist(err):
		return message.NewIoError(err.Error(), "already_exists")
	default:
		return message.NewIoError(err.Error(), "")
	}
}

func errToReply(err error) message.Reply {
	if sc, ok := err.(*FileSigChangedError); ok {
		return message.NewFileSigChangedError(sc.ID, sc.NewSig)
	}
	return ioErrorReply(err)
}

func (s *Server) handleCustom(req message.Request) message.Reply {
	var args message.CustomArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	handler := s.cfg.customHandler
	if handler == nil {
		return message.NewGenericError("no custom handler registered")
	}
	data, err := handler(args.Data)
	if err != nil {
		return message.NewGenericError(err.Error())
	}
	return message.Reply{Kind: message.KindCustomReply, Args: message.CustomReplyArgs{Data: data}}
}

func (s *Server) handleInternalDebug() message.Reply {
	s.mu.Lock()
	conns := len(s.connections)
	s.mu.Unlock()
	return message.Reply{
		Kind: message.KindInternalDebugReply,
		Args: map[string]interface{}{
			"connections": conns,
		},
	}
}

// --- filesystem handlers ---

func (s *Server) handleCreateDir(req message.Request) message.Reply {
	var args message.CreateDirArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	path := s.resolvePath(args.Path)
	if err := os.Mkdir(path, 0o755); err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindDirCreated, Args: message.DirCreatedArgs{Path: args.Path}}
}

func (s *Server) handleRenameDir(req message.Request) message.Reply {
	var args message.RenameDirArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	from := s.resolvePath(args.From)
	to := s.resolvePath(args.To)
	if !s.fsManager.RenameDirAllowed(from) {
		return message.NewGenericError("rename_dir: a file beneath " + args.From + " is still open")
	}
	if err := os.Rename(from, to); err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindDirRenamed, Args: message.DirRenamedArgs{From: args.From, To: args.To}}
}

func (s *Server) handleRemoveDir(req message.Request) message.Reply {
	var args message.RemoveDirArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	path := s.resolvePath(args.Path)
	var err error
	if args.NonEmpty {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindDirRemoved, Args: message.DirRemovedArgs{Path: args.Path}}
}

func (s *Server) handleListDirContents(req message.Request) message.Reply {
	var args message.ListDirContentsArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	entries, err := ListDir(s.resolvePath(args.Path))
	if err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindDirContentsList, Args: message.DirContentsListArgs{Path: args.Path, Entries: entries}}
}

func (s *Server) handleOpenFile(peer string, req message.Request) message.Reply {
	var args message.OpenFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	path := s.resolvePath(args.Path)
	id, sig, err := s.fsManager.Open(peer, path, args.CreateIfMissing, args.Write, args.Read)
	if err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindFileOpened, Args: message.FileOpenedArgs{ID: id, Sig: sig, Path: args.Path, Read: args.Read, Write: args.Write}}
}

func (s *Server) handleCloseFile(peer string, req message.Request) message.Reply {
	var args message.CloseFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	if err := s.fsManager.Close(peer, args.ID); err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindFileClosed, Args: message.FileClosedArgs{ID: args.ID}}
}

func (s *Server) handleRenameUnopenedFile(req message.Request) message.Reply {
	var args message.RenameUnopenedFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	from := s.resolvePath(args.From)
	to := s.resolvePath(args.To)
	if err := s.fsManager.RenameUnopened(from, to); err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindUnopenedFileRenamed, Args: message.UnopenedFileRenamedArgs{From: args.From, To: args.To}}
}

func (s *Server) handleRenameFile(req message.Request) message.Reply {
	var args message.RenameFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	to := s.resolvePath(args.To)
	newSig, err := s.fsManager.Rename(args.ID, args.Sig, to)
	if err != nil {
		return errToReply(err)
	}
	return message.Reply{Kind: message.KindFileRenamed, Args: message.FileRenamedArgs{Sig: newSig, To: args.To}}
}

func (s *Server) handleRemoveUnopenedFile(req message.Request) message.Reply {
	var args message.RemoveUnopenedFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	if err := s.fsManager.RemoveUnopened(s.resolvePath(args.Path)); err != nil {
		return ioErrorReply(err)
	}
	return message.Reply{Kind: message.KindUnopenedFileRemoved, Args: message.UnopenedFileRemovedArgs{Path: args.Path}}
}

func (s *Server) handleRemoveFile(req message.Request) message.Reply {
	var args message.RemoveFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	if err := s.fsManager.Remove(args.ID, args.Sig); err != nil {
		return errToReply(err)
	}
	return message.Reply{Kind: message.KindFileRemoved, Args: message.FileRemovedArgs{Sig: args.Sig}}
}

func (s *Server) handleReadFile(req message.Request) message.Reply {
	var args message.ReadFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	data, err := s.fsManager.Read(args.ID, args.Sig)
	if err != nil {
		return errToReply(err)
	}
	return message.Reply{Kind: message.KindFileContents, Args: message.FileContentsArgs{ID: args.ID, Sig: args.Sig, Data: data}}
}

func (s *Server) handleWriteFile(req message.Request) message.Reply {
	var args message.WriteFileArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	newSig, err := s.fsManager.Write(args.ID, args.Sig, args.Data)
	if err != nil {
		return errToReply(err)
	}
	return message.Reply{Kind: message.KindFileWritten, Args: message.FileWrittenArgs{ID: args.ID, Sig: newSig}}
}

// --- process handlers ---

func (s *Server) handleExecProc(peer string, req message.Request) message.Reply {
	var args message.ExecProcArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	dir := s.resolvePath(args.CurrentDir)
	id, err := s.procManager.Exec(peer, args.Command, args.Args, args.Stdin, args.Stdout, args.Stderr, dir)
	if err != nil {
		return message.NewIoError(err.Error(), "exec_failed")
	}
	return message.Reply{Kind: message.KindProcStarted, Args: message.ProcStartedArgs{ID: id}}
}

func (s *Server) handleWriteProcStdin(peer string, req message.Request) message.Reply {
	var args message.WriteProcStdinArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	if err := s.procManager.WriteStdin(peer, args.ID, args.Input); err != nil {
		return message.NewGenericError(err.Error())
	}
	return message.Reply{Kind: message.KindStdinWritten, Args: message.StdinWrittenArgs{}}
}

func (s *Server) handleReadProcStdout(peer string, req message.Request) message.Reply {
	var args message.ReadProcStdoutArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	out, err := s.procManager.ReadStdout(peer, args.ID)
	if err != nil {
		return message.NewGenericError(err.Error())
	}
	return message.Reply{Kind: message.KindStdoutContents, Args: message.StdoutContentsArgs{Output: out}}
}

func (s *Server) handleReadProcStderr(peer string, req message.Request) message.Reply {
	var args message.ReadProcStderrArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	out, err := s.procManager.ReadStderr(peer, args.ID)
	if err != nil {
		return message.NewGenericError(err.Error())
	}
	return message.Reply{Kind: message.KindStderrContents, Args: message.StderrContentsArgs{Output: out}}
}

func (s *Server) handleKillProc(peer string, req message.Request) message.Reply {
	var args message.KillProcArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	if err := s.procManager.Kill(peer, args.ID); err != nil {
		return message.NewGenericError(err.Error())
	}
	return s.handleReadProcStatus(peer, message.Request{Kind: message.KindReadProcStatus, Args: message.ReadProcStatusArgs{ID: args.ID}})
}

func (s *Server) handleReadProcStatus(peer string, req message.Request) message.Reply {
	var args message.ReadProcStatusArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}
	alive, exitCode, err := s.procManager.Status(peer, args.ID)
	if err != nil {
		return message.NewGenericError(err.Error())
	}
	return message.Reply{Kind: message.KindProcStatus, Args: message.ProcStatusArgs{ID: args.ID, IsAlive: alive, ExitCode: exitCode}}
}

// --- composition handlers ---

// handleBatch evaluates every sub-request concurrently, bounded by a
// worker pool sized to the server's configured concurrency, and returns
// replies in request order regardless of completion order.
func (s *Server) handleBatch(ctx context.Context, peer string, req message.Request) message.Reply {
	var args message.BatchArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}

	replies := make([]message.Reply, len(args.Requests))
	sem := make(chan struct{}, s.cfg.batchConcurrency)
	var wg sync.WaitGroup
	for i, sub := range args.Requests {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sub message.Request) {
			defer wg.Done()
			defer func() { <-sem }()
			replies[i] = s.handle(ctx, peer, sub)
		}(i, sub)
	}
	wg.Wait()

	return message.Reply{Kind: message.KindBatchResult, Args: message.BatchResultArgs{Replies: replies}}
}

// handleSequence evaluates sub-requests strictly in order, resolving each
// one's TransformRules against the replies accumulated so far, and stops
// at the first error reply while still returning every reply produced up
// to and including it.
func (s *Server) handleSequence(ctx context.Context, peer string, req message.Request) message.Reply {
	var args message.SequenceArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}

	replies := make([]message.Reply, 0, len(args.Requests))
	for _, lt := range args.Requests {
		resolved, err := lt.Resolve(replies)
		if err != nil {
			replies = append(replies, message.NewGenericError(err.Error()))
			break
		}
		reply := s.handle(ctx, peer, resolved)
		replies = append(replies, reply)
		if reply.IsError() {
			break
		}
	}

	return message.Reply{Kind: message.KindSequenceResult, Args: message.SequenceResultArgs{Replies: replies}}
}

// handleForward dials addr as a plain client and relays a synchronous Ask
// of the inner request, returning its reply wrapped as a ForwardReplyArgs.
// It never recurses through this server's own dispatch loop, matching the
// spec's "server forwards as a client of the target" semantics.
func (s *Server) handleForward(ctx context.Context, req message.Request) message.Reply {
	var args message.ForwardArgs
	if err := message.DecodeArgs(req.Args, &args); err != nil {
		return message.NewGenericError(err.Error())
	}

	client, err := NewClient(args.Addr, WithTransport(s.cfg.transport), WithLogger(s.logger))
	if err != nil {
		return message.NewGenericError("forward: dial " + args.Addr + ": " + err.Error())
	}
	defer client.Close()

	inner, err := client.Ask(ctx, args.Inner)
	if err != nil {
		return message.NewGenericError("forward: " + err.Error())
	}
	return message.Reply{Kind: message.KindForwardReply, Args: message.ForwardReplyArgs{Inner: inner}}
}
