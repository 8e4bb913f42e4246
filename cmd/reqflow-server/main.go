package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"reqflow/pkg/codec"
	"reqflow/pkg/config"
	"reqflow/pkg/observability"
	"reqflow/pkg/resultcache"
	"reqflow/pkg/server"
	"reqflow/pkg/transport"
	"reqflow/pkg/transport/quic"
	"reqflow/pkg/transport/tcp"
)

func main() {
	cfgPath := flag.String("config", "", "path to reqflow.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := resultcache.New(resultcache.Options{MaxBytes: cfg.Cache.MaxBytes})
	defer store.Close()

	codecs := codec.NewRegistry()
	srv := server.New(cfg.Server.ExecLimit,
		server.Echo(),
		server.Sleep(codecs),
		server.Fail(),
		server.KV{Store: store, TTL: cfg.Cache.TTL},
	)

	var listeners []transport.Listener
	for _, spec := range cfg.Server.Listen {
		kind, addr, ok := strings.Cut(spec, ":")
		if !ok {
			fatalf("invalid server.listen entry %q (want kind:address)", spec)
		}
		tr, err := newTransport(kind)
		if err != nil {
			fatalf("listen %q: %v", spec, err)
		}
		l, err := tr.Listen(ctx, addr)
		if err != nil {
			fatalf("listen %q: %v", spec, err)
		}
		listeners = append(listeners, l)
	}
	if len(listeners) == 0 {
		fatalf("no server.listen entries configured")
	}

	zap.L().Info("reqflow server starting",
		zap.String("app", cfg.AppName),
		zap.Int("exec_limit", cfg.Server.ExecLimit),
		zap.Strings("listen", cfg.Server.Listen))

	if err := srv.Serve(ctx, listeners...); err != nil {
		zap.L().Error("serve", zap.Error(err))
		os.Exit(1)
	}
}

func newTransport(kind string) (transport.Transport, error) {
	switch strings.ToLower(kind) {
	case "tcp":
		return tcp.New(), nil
	case "quic":
		return quic.New()
	default:
		return nil, fmt.Errorf("unsupported transport kind %q", kind)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
