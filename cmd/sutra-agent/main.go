// Command sutra-agent runs the per-host supervisor half of the cluster
// plane: it registers with the master, heartbeats every
// clustermeta.HeartbeatEvery, and spawns/stops/restarts storage-node
// processes on the master's behalf.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/agent"
	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/config"
)

func main() {
	id := flag.String("id", "", "agent id, unique per host (required)")
	addr := flag.String("addr", "", "host:port this agent's own control surface listens on and advertises to the master (required)")
	nodeBinary := flag.String("node-binary", "sutra-node", "path to the sutra-node executable this agent spawns")
	capabilities := flag.String("capabilities", "", "comma-separated capability tags advertised to the master")
	flag.Parse()

	if *id == "" || *addr == "" {
		fmt.Fprintln(os.Stderr, "sutra-agent: --id and --addr are required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sutra-agent: config:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var caps []string
	if *capabilities != "" {
		caps = strings.Split(*capabilities, ",")
	}

	platform := agent.NewProcessPlatform(*nodeBinary)
	a := agent.New(*id, *addr, cfg.MasterEndpoint, platform, logger)

	hb, err := agent.NewHeartbeater(a, cfg.MasterEndpoint, clustermeta.PlatformProcess, caps, logger)
	if err != nil {
		logger.Fatal("build heartbeater", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := hb.Register(ctx); err != nil {
		logger.Warn("initial registration with master failed, will retry on next heartbeat", zap.Error(err))
	}
	if err := hb.Start(); err != nil {
		logger.Fatal("start heartbeater", zap.Error(err))
	}

	listenAddr := *addr
	if i := strings.LastIndex(listenAddr, ":"); i >= 0 {
		listenAddr = listenAddr[i:]
	}
	srv := &http.Server{Addr: listenAddr, Handler: a.Router()}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	logger.Info("agent listening", zap.String("id", *id), zap.String("addr", *addr))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("serve", zap.Error(err))
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = hb.Stop()
}
