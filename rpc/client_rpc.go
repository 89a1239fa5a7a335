package rpc

import (
	"context"

	"github.com/coldbound/overthere/message"
)

// Heartbeat pings the server and blocks until its Reply::Heartbeat arrives
// or the ask times out.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.call(ctx, message.KindHeartbeat, nil, nil)
}

// Version returns the server's reported version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out message.VersionReplyArgs
	if err := c.call(ctx, message.KindVersion, nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Capabilities returns the server's advertised capability set.
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	var out message.CapabilitiesReplyArgs
	if err := c.call(ctx, message.KindCapabilities, nil, &out); err != nil {
		return nil, err
	}
	return out.Capabilities, nil
}

// CreateDir creates a directory at path.
func (c *Client) CreateDir(ctx context.Context, path string) error {
	return c.call(ctx, message.KindCreateDir, message.CreateDirArgs{Path: path}, nil)
}

// RenameDir renames a directory; it fails if any file beneath from is
// still open.
func (c *Client) RenameDir(ctx context.Context, from, to string) error {
	return c.call(ctx, message.KindRenameDir, message.RenameDirArgs{From: from, To: to}, nil)
}

// RemoveDir removes a directory, optionally recursively if nonEmpty is set.
func (c *Client) RemoveDir(ctx context.Context, path string, nonEmpty bool) error {
	return c.call(ctx, message.KindRemoveDir, message.RemoveDirArgs{Path: path, NonEmpty: nonEmpty}, nil)
}

// ListDirContents lists the entries directly under path.
func (c *Client) ListDirContents(ctx context.Context, path string) ([]message.DirEntry, error) {
	var out message.DirContentsListArgs
	if err := c.call(ctx, message.KindListDirContents, message.ListDirContentsArgs{Path: path}, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// OpenFile opens (or reuses an already-open handle to) path, returning its
// file id and current signature.
func (c *Client) OpenFile(ctx context.Context, path string, createIfMissing, write, read bool) (id, sig uint32, err error) {
	var out message.FileOpenedArgs
	args := message.OpenFileArgs{Path: path, CreateIfMissing: createIfMissing, Write: write, Read: read}
	if err := c.call(ctx, message.KindOpenFile, args, &out); err != nil {
		return 0, 0, err
	}
	return out.ID, out.Sig, nil
}

// CloseFile closes a previously opened file handle.
func (c *Client) CloseFile(ctx context.Context, id uint32) error {
	return c.call(ctx, message.KindCloseFile, message.CloseFileArgs{ID: id}, nil)
}

// RenameUnopenedFile renames a file by path without it being open.
func (c *Client) RenameUnopenedFile(ctx context.Context, from, to string) error {
	return c.call(ctx, message.KindRenameUnopenedFile, message.RenameUnopenedFileArgs{From: from, To: to}, nil)
}

// RenameFile renames an open file, quoting its current signature. Returns
// the file's new signature.
func (c *Client) RenameFile(ctx context.Context, id, sig uint32, to string) (newSig uint32, err error) {
	var out message.FileRenamedArgs
	args := message.RenameFileArgs{ID: id, Sig: sig, To: to}
	if err := c.call(ctx, message.KindRenameFile, args, &out); err != nil {
		return 0, err
	}
	return out.Sig, nil
}

// RemoveUnopenedFile removes a file by path without it being open.
func (c *Client) RemoveUnopenedFile(ctx context.Context, path string) error {
	return c.call(ctx, message.KindRemoveUnopenedFile, message.RemoveUnopenedFileArgs{Path: path}, nil)
}

// RemoveFile removes an open file, quoting its current signature.
func (c *Client) RemoveFile(ctx context.Context, id, sig uint32) error {
	return c.call(ctx, message.KindRemoveFile, message.RemoveFileArgs{ID: id, Sig: sig}, nil)
}

// ReadFile reads the full contents of an open file, quoting its current
// signature.
func (c *Client) ReadFile(ctx context.Context, id, sig uint32) ([]byte, error) {
	var out message.FileContentsArgs
	args := message.ReadFileArgs{ID: id, Sig: sig}
	if err := c.call(ctx, message.KindReadFile, args, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// WriteFile overwrites an open file's contents, quoting its current
// signature. Returns the file's new signature.
func (c *Client) WriteFile(ctx context.Context, id, sig uint32, data []byte) (newSig uint32, err error) {
	var out message.FileWrittenArgs
	args := message.WriteFileArgs{ID: id, Sig: sig, Data: data}
	if err := c.call(ctx, message.KindWriteFile, args, &out); err != nil {
		return 0, err
	}
	return out.Sig, nil
}

// ExecProc spawns a remote process and returns its proc id.
func (c *Client) ExecProc(ctx context.Context, command string, args []string, stdin, stdout, stderr bool, currentDir string) (procID uint32, err error) {
	var out message.ProcStartedArgs
	a := message.ExecProcArgs{Command: command, Args: args, Stdin: stdin, Stdout: stdout, Stderr: stderr, CurrentDir: currentDir}
	if err := c.call(ctx, message.KindExecProc, a, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// WriteProcStdin appends input to a running process's stdin.
func (c *Client) WriteProcStdin(ctx context.Context, id uint32, input []byte) error {
	return c.call(ctx, message.KindWriteProcStdin, message.WriteProcStdinArgs{ID: id, Input: input}, nil)
}

// ReadProcStdout drains and returns a process's accumulated stdout buffer.
func (c *Client) ReadProcStdout(ctx context.Context, id uint32) ([]byte, error) {
	var out message.StdoutContentsArgs
	if err := c.call(ctx, message.KindReadProcStdout, message.ReadProcStdoutArgs{ID: id}, &out); err != nil {
		return nil, err
	}
	return out.Output, nil
}

// ReadProcStderr drains and returns a process's accumulated stderr buffer.
func (c *Client) ReadProcStderr(ctx context.Context, id uint32) ([]byte, error) {
	var out message.StderrContentsArgs
	if err := c.call(ctx, message.KindReadProcStderr, message.ReadProcStderrArgs{ID: id}, &out); err != nil {
		return nil, err
	}
	return out.Output, nil
}

// KillProc terminates a running process.
func (c *Client) KillProc(ctx context.Context, id uint32) error {
	return c.call(ctx, message.KindKillProc, message.KillProcArgs{ID: id}, nil)
}

// ReadProcStatus reports whether a process is alive and, once it has
// exited, its exit code.
func (c *Client) ReadProcStatus(ctx context.Context, id uint32) (isAlive bool, exitCode *int32, err error) {
	var out message.ProcStatusArgs
	if err := c.call(ctx, message.KindReadProcStatus, message.ReadProcStatusArgs{ID: id}, &out); err != nil {
		return false, nil, err
	}
	return out.IsAlive, out.ExitCode, nil
}

// Custom issues an application-defined opaque request.
func (c *Client) Custom(ctx context.Context, data []byte) ([]byte, error) {
	var out message.CustomReplyArgs
	if err := c.call(ctx, message.KindCustom, message.CustomArgs{Data: data}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Batch evaluates every sub-request independently; the reply order always
// matches the request order regardless of which sub-handler finished
// first.
func (c *Client) Batch(ctx context.Context, reqs []message.Request) ([]message.Reply, error) {
	var out message.BatchResultArgs
	if err := c.call(ctx, message.KindBatch, message.BatchArgs{Requests: reqs}, &out); err != nil {
		return nil, err
	}
	return out.Replies, nil
}

// Sequence evaluates sub-requests strictly in order, resolving each's
// TransformRules against the accumulated prior replies.
func (c *Client) Sequence(ctx context.Context, reqs []message.LazilyTransformedRequest) ([]message.Reply, error) {
	var out message.SequenceResultArgs
	if err := c.call(ctx, message.KindSequence, message.SequenceArgs{Requests: reqs}, &out); err != nil {
		return nil, err
	}
	return out.Replies, nil
}

// Forward asks the receiving server to re-issue inner against addr and
// relay the reply back synchronously.
func (c *Client) Forward(ctx context.Context, addr string, inner message.Request) (message.Reply, error) {
	var out message.ForwardReplyArgs
	if err := c.call(ctx, message.KindForward, message.ForwardArgs{Addr: addr, Inner: inner}, &out); err != nil {
		return message.Reply{}, err
	}
	return out.Inner, nil
}

// InternalDebug requests a snapshot of the server's internal counters.
func (c *Client) InternalDebug(ctx context.Context) (message.Reply, error) {
	return c.Ask(ctx, message.Request{Kind: message.KindInternalDebug, Args: message.InternalDebugArgs{}})
}
