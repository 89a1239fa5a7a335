// Command overthere-server runs the remote-execution RPC server: it binds
// one address over TCP or UDP and answers filesystem, process, and
// composition requests until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbound/overthere/auth"
	"github.com/coldbound/overthere/config"
	"github.com/coldbound/overthere/crypt"
	"github.com/coldbound/overthere/internal/logx"
	"github.com/coldbound/overthere/rpc"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "overthere-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, addr, err := config.ParseServerFlags(fs, args)
	if err != nil {
		return err
	}

	logger := logx.New(logx.ParseLevel(cfg.LogLevel))

	authenticator, err := auth.New(cfg.Auth, []byte(cfg.AuthKey))
	if err != nil {
		return err
	}
	cipher, err := crypt.New(cfg.Enc, []byte(cfg.EncKey))
	if err != nil {
		return err
	}

	srv, err := rpc.NewServer(addr,
		rpc.WithServerTransport(cfg.Transport),
		rpc.WithServerAuthenticator(authenticator),
		rpc.WithServerCipher(cipher),
		rpc.WithServerLogger(logger),
		rpc.WithWorkingDir(cfg.WorkingDir),
		rpc.WithServerPacketTTL(cfg.PacketTTL()),
		rpc.WithCleanupInterval(cfg.CleanupInterval()),
		rpc.WithUntouchedFileTTL(cfg.UntouchedFileTTL()),
		rpc.WithUntouchedProcTTL(cfg.UntouchedProcTTL()),
		rpc.WithDeadProcTTL(cfg.DeadProcTTL()),
		rpc.WithServerMailboxCapacity(cfg.InternalBufferSize),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("listening on %s (%s)", srv.Addr(), cfg.Transport)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	return srv.Stop()
}
