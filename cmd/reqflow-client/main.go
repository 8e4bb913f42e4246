package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"reqflow/pkg/client"
	"reqflow/pkg/config"
	"reqflow/pkg/future"
	"reqflow/pkg/observability"
	"reqflow/pkg/transport"
	"reqflow/pkg/transport/quic"
	"reqflow/pkg/transport/tcp"
)

func main() {
	cfgPath := flag.String("config", "", "path to reqflow.yaml (optional)")
	kind := flag.String("kind", "", "transport kind override: tcp|quic")
	addr := flag.String("addr", "", "server address override")
	op := flag.String("op", "echo", "operation name")
	args := flag.String("args", `{"hello":"world"}`, "operation args as JSON (empty = none)")
	key := flag.String("key", "", "kv key (sent as meta)")
	n := flag.Int("n", 1, "number of requests to submit")
	limit := flag.Int("limit", 0, "concurrency limit override")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *kind != "" {
		cfg.Transport.Kind = *kind
	}
	if *addr != "" {
		cfg.Transport.Addr = *addr
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tr, err := newTransport(cfg.Transport.Kind)
	if err != nil {
		fatalf("transport: %v", err)
	}
	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.Transport.DialTimeout)
	c, err := client.Dial(dialCtx, tr, cfg.Transport.Addr)
	dialCancel()
	if err != nil {
		fatalf("dial: %v", err)
	}
	defer c.Close()

	if *limit > 0 {
		if err := c.SetConcurrencyLimit(*limit); err != nil {
			fatalf("set limit: %v", err)
		}
	} else if err := c.SetConcurrencyLimit(cfg.Scheduler.ConcurrencyLimit); err != nil {
		fatalf("set limit: %v", err)
	}

	var payload any
	if strings.TrimSpace(*args) != "" {
		if err := json.Unmarshal([]byte(*args), &payload); err != nil {
			fatalf("parse -args: %v", err)
		}
	}

	var opts []client.QueryOption
	if *key != "" {
		opts = append(opts, client.WithMeta("key", *key))
	}

	handles := make([]*future.Handle, 0, *n)
	start := time.Now()
	for i := 0; i < *n; i++ {
		h, err := c.Query(*op, payload, opts...)
		if err != nil {
			fatalf("submit: %v", err)
		}
		handles = append(handles, h)
	}
	if err := c.Run(ctx); err != nil {
		fatalf("run: %v", err)
	}

	for _, h := range handles {
		if err := h.Await(ctx); err != nil {
			fmt.Printf("%s: FAILED: %v\n", h.RequestID(), err)
			continue
		}
		res, _ := h.Result(ctx)
		if rs, err := h.ResultSet(ctx); err == nil && len(rs.Rows) > 0 {
			fmt.Printf("%s: %v rows=%v\n", h.RequestID(), rs.Columns, rs.Rows)
		} else {
			fmt.Printf("%s: %d bytes (%s)\n", h.RequestID(), len(res.Payload), res.Format)
		}
	}
	fmt.Printf("%d request(s) in %s\n", *n, time.Since(start).Round(time.Millisecond))
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
