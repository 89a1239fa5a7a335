// Command overthere-client issues one RPC against an overthere server and
// prints its result, exiting non-zero on any AskError or transport
// failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/coldbound/overthere/auth"
	"github.com/coldbound/overthere/crypt"
	"github.com/coldbound/overthere/message"
	"github.com/coldbound/overthere/rpc"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "overthere-client:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	transport := fs.String("transport", "tcp", "tcp or udp")
	authAlg := fs.String("auth", "none", "none, sha256, or sha512")
	akey := fs.String("akey", "", "pre-shared authentication key")
	encAlg := fs.String("enc", "none", "none, aes-128-gcm, aes-256-gcm, or chacha20-poly1305")
	ekey := fs.String("ekey", "", "pre-shared encryption key")
	timeout := fs.Duration("timeout", rpc.DefaultAskTimeout, "ask timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) > 0 && rest[0] == "schema" {
		return printSchema()
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: overthere-client [flags] <addr> <subcommand> [args...]")
	}
	addr, sub, subArgs := rest[0], rest[1], rest[2:]

	authenticator, err := auth.New(*authAlg, []byte(*akey))
	if err != nil {
		return err
	}
	cipher, err := crypt.New(*encAlg, []byte(*ekey))
	if err != nil {
		return err
	}

	client, err := rpc.NewClient(addr,
		rpc.WithTransport(*transport),
		rpc.WithAuthenticator(authenticator),
		rpc.WithCipher(cipher),
		rpc.WithAskTimeout(*timeout),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	return dispatch(ctx, client, sub, subArgs)
}

func dispatch(ctx context.Context, c *rpc.Client, sub string, args []string) error {
	switch sub {
	case "version":
		v, err := c.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil

	case "capabilities":
		caps, err := c.Capabilities(ctx)
		if err != nil {
			return err
		}
		for _, capability := range caps {
			fmt.Println(capability)
		}
		return nil

	case "internal-debug":
		reply, err := c.InternalDebug(ctx)
		if err != nil {
			return err
		}
		return printJSON(reply.Args)

	case "ls-root-dir":
		return lsDir(ctx, c, ".")

	case "ls-dir":
		if len(args) < 1 {
			return fmt.Errorf("usage: ls-dir <path>")
		}
		return lsDir(ctx, c, args[0])

	case "mk-dir":
		if len(args) < 1 {
			return fmt.Errorf("usage: mk-dir <path>")
		}
		return c.CreateDir(ctx, args[0])

	case "mv-dir":
		if len(args) < 2 {
			return fmt.Errorf("usage: mv-dir <from> <to>")
		}
		return c.RenameDir(ctx, args[0], args[1])

	case "rm-dir":
		if len(args) < 1 {
			return fmt.Errorf("usage: rm-dir <path> [--recursive]")
		}
		nonEmpty := len(args) > 1 && args[1] == "--recursive"
		return c.RemoveDir(ctx, args[0], nonEmpty)

	case "write-file":
		if len(args) < 1 {
			return fmt.Errorf("usage: write-file <path> [data]")
		}
		return writeFile(ctx, c, args)

	case "read-file":
		if len(args) < 1 {
			return fmt.Errorf("usage: read-file <path>")
		}
		return readFile(ctx, c, args[0])

	case "mv-file":
		if len(args) < 2 {
			return fmt.Errorf("usage: mv-file <from> <to>")
		}
		return c.RenameUnopenedFile(ctx, args[0], args[1])

	case "rm-file":
		if len(args) < 1 {
			return fmt.Errorf("usage: rm-file <path>")
		}
		return c.RemoveUnopenedFile(ctx, args[0])

	case "exec":
		if len(args) < 1 {
			return fmt.Errorf("usage: exec <command> [args...]")
		}
		return execProc(ctx, c, args[0], args[1:])

	case "reattach":
		if len(args) < 1 {
			return fmt.Errorf("usage: reattach <proc_id>")
		}
		return reattach(ctx, c, args[0])

	case "raw":
		return raw(ctx, c, args)

	default:
		return fmt.Errorf("unknown subcommand %q", sub)
	}
}

func lsDir(ctx context.Context, c *rpc.Client, path string) error {
	entries, err := c.ListDirContents(ctx, path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "file"
		switch {
		case e.IsDir:
			kind = "dir"
		case e.IsSymlink:
			kind = "symlink"
		}
		fmt.Printf("%-6s %s\n", kind, e.Path)
	}
	return nil
}

func writeFile(ctx context.Context, c *rpc.Client, args []string) error {
	path := args[0]
	var data []byte
	if len(args) > 1 {
		data = []byte(args[1])
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		data = b
	}

	id, sig, err := c.OpenFile(ctx, path, true, true, false)
	if err != nil {
		return err
	}
	defer c.CloseFile(ctx, id)

	_, err = c.WriteFile(ctx, id, sig, data)
	return err
}

func readFile(ctx context.Context, c *rpc.Client, path string) error {
	id, sig, err := c.OpenFile(ctx, path, false, false, true)
	if err != nil {
		return err
	}
	defer c.CloseFile(ctx, id)

	data, err := c.ReadFile(ctx, id, sig)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func execProc(ctx context.Context, c *rpc.Client, command string, args []string) error {
	id, err := c.ExecProc(ctx, command, args, false, true, true, "")
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func reattach(ctx context.Context, c *rpc.Client, idArg string) error {
	id, err := strconv.ParseUint(idArg, 10, 32)
	if err != nil {
		return fmt.Errorf("reattach: invalid proc id %q: %w", idArg, err)
	}
	procID := uint32(id)

	for {
		out, err := c.ReadProcStdout(ctx, procID)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)

		errOut, err := c.ReadProcStderr(ctx, procID)
		if err != nil {
			return err
		}
		os.Stderr.Write(errOut)

		alive, exitCode, err := c.ReadProcStatus(ctx, procID)
		if err != nil {
			return err
		}
		if !alive {
			if exitCode != nil {
				fmt.Fprintf(os.Stderr, "process exited with code %d\n", *exitCode)
			}
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func raw(ctx context.Context, c *rpc.Client, args []string) error {
	var data []byte
	if len(args) > 0 {
		data = []byte(args[0])
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		data = b
	}
	out, err := c.Custom(ctx, data)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func printSchema() error {
	return printJSON(map[string]interface{}{
		"requests": message.RequestSchema(),
		"replies":  message.ReplySchema(),
		"errors":   message.ErrorSchema(),
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
