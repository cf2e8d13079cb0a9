// Command kitworker is the per-document worker process entry point:
// resolve configuration, build the jail and drop capabilities, pre-init
// the native document engine, connect back to the supervisor, and run the
// control loop until discard or EOF (spec.md §9's explicit lifecycle).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/collabora-online/kitworker/internal/config"
	"github.com/collabora-online/kitworker/internal/engine"
	"github.com/collabora-online/kitworker/internal/jail"
	"github.com/collabora-online/kitworker/internal/metrics"
	"github.com/collabora-online/kitworker/internal/transport"
	"github.com/collabora-online/kitworker/internal/worker"
	"github.com/collabora-online/kitworker/internal/wslog"
)

// Exit codes per spec.md §6.5.
const (
	exitOK       = 0
	exitSoftware = 70
	exitCapFail  = 1
)

func main() {
	fs := config.FlagSet("kitworker")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSoftware)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSoftware)
	}

	logger, err := wslog.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSoftware)
	}

	engineRoot := cfg.LoTemplate
	jailPath := cfg.ChildRoot
	if !cfg.NoCapabilities {
		runtime.LockOSThread()
		jailPath = filepath.Join(cfg.ChildRoot, strconv.Itoa(os.Getpid()))
		opts := jail.Options{
			JailPath:    jailPath,
			SysTemplate: cfg.SysTemplate,
			LoTemplate:  cfg.LoTemplate,
			LoSubPath:   cfg.LoSubPath,
			BindMount:   cfg.BindMount,
		}
		if err := jail.Build(opts, logger); err != nil {
			logger.Error("kitworker: jail build failed", "error", err)
			os.Exit(exitCodeFor(err))
		}
		engineRoot = cfg.LoSubPath
	}

	if err := engine.Preinit(engineRoot); err != nil {
		logger.Error("kitworker: engine preinit failed", "error", err)
		os.Exit(exitSoftware)
	}

	libPath, err := engine.LibraryPath(engineRoot)
	if err != nil {
		logger.Error("kitworker: locate engine library failed", "error", err)
		os.Exit(exitSoftware)
	}
	office, err := engine.NewOffice(libPath)
	if err != nil {
		logger.Error("kitworker: load engine library failed", "error", err)
		os.Exit(exitSoftware)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.MasterPort)))
	if err != nil {
		logger.Error("kitworker: dial supervisor failed", "error", err)
		os.Exit(exitSoftware)
	}
	defer conn.Close()

	collectors := metrics.New()
	metricsServer, err := metrics.Serve(cfg.MetricsAddr, collectors)
	if err != nil {
		logger.Warn("kitworker: metrics server failed to start", "error", err)
	}
	defer metrics.Shutdown(context.Background(), metricsServer)

	w := worker.New(logger, transport.New(conn), office, jailPath, collectors)
	if cfg.QueryVersion {
		version := office.VersionInfo()
		w.SetHandshakeVersion(version)
		if cfg.DisplayVersion {
			fmt.Println(version)
		}
	}
	if err := w.Register(os.Getpid()); err != nil {
		logger.Error("kitworker: registration handshake failed", "error", err)
		os.Exit(exitSoftware)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		w.HandleSignal()
	}()

	if err := w.Run(context.Background()); err != nil {
		logger.Error("kitworker: control loop exited with error", "error", err)
		os.Exit(exitSoftware)
	}
	os.Exit(exitOK)
}

func exitCodeFor(err error) int {
	var fatal *jail.FatalError
	if errors.As(err, &fatal) && fatal.ExitCapability {
		return exitCapFail
	}
	return exitSoftware
}
