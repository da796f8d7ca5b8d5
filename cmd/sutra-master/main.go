// Command sutra-master runs the cluster control plane: the agent and
// storage-node registries, the shard map, the health monitor, and the 2PC
// coordinator. Cluster lifecycle events are persisted into a reserved
// storage shard ("eating our own dogfood") in the same segment/WAL format
// every other shard uses. The agent and node registries, the shard map and
// the coordinator's commit log are held in memory only and are not
// recovered after a master restart.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/config"
	"github.com/sutra-db/sutra/internal/eventlog"
	"github.com/sutra-db/sutra/internal/master"
	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/store"
	"github.com/sutra-db/sutra/internal/vectorindex"
	"github.com/sutra-db/sutra/internal/wireproto"
)

func main() {
	port := flag.Int("port", 7000, "TCP port the master's HTTP control surface listens on")
	eventsPort := flag.Int("events-port", 50052, "TCP port the reserved events shard's wire listener binds")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sutra-master: config:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	eventsDir := filepath.Join(cfg.StoragePath, "events")
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		logger.Fatal("create events shard dir", zap.Error(err))
	}
	eventsStore, err := store.Open(store.Options{
		Dir: eventsDir, ShardName: "events", Dimension: cfg.VectorDimension,
		Metric: vectorindex.Cosine, CheckpointThreshold: cfg.CheckpointThresholdBytes(),
		HNSWM: cfg.HNSWM, HNSWEfConstruction: cfg.HNSWEfConstruction,
		Logger: logger, Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logger.Fatal("open events shard", zap.Error(err))
	}
	eventsNode := storagenode.New("events", eventsStore, logger)
	emitter := eventlog.NewEmitter(eventsNode, logger)

	m, err := master.New(emitter, logger)
	if err != nil {
		logger.Fatal("build master", zap.Error(err))
	}
	if err := m.Health.Start(); err != nil {
		logger.Fatal("start health monitor", zap.Error(err))
	}

	srv := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: m.Router()}

	// The events shard is a storage node like any other so reasoning/dashboard collaborators can read it over the
	// same C4 wire protocol, on its own reserved default port.
	eventsLn, err := net.Listen("tcp", fmt.Sprintf(":%d", *eventsPort))
	if err != nil {
		logger.Fatal("listen events shard", zap.Error(err))
	}
	eventsServer := wireproto.NewServer(eventsLn, &wireproto.NodeHandler{Node: eventsNode}, wireproto.ConnOptions{
		IdleTimeout: cfg.IdleTimeout(), Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runEventsCheckpointWatcher(ctx, eventsStore, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	eventsServeErr := make(chan error, 1)
	go func() { eventsServeErr <- eventsServer.Serve() }()

	logger.Info("master listening", zap.Int("port", *port), zap.Int("events_port", *eventsPort))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("serve", zap.Error(err))
		}
	case err := <-eventsServeErr:
		if err != nil {
			logger.Error("serve events shard", zap.Error(err))
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = eventsServer.Close()
	_ = m.Health.Stop()
	emitter.Close()
	_ = eventsStore.Checkpoint()
	_ = eventsStore.Close()
}

func runEventsCheckpointWatcher(ctx context.Context, s *store.Store, logger *zap.Logger) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.ShouldCheckpoint() {
				if err := s.Checkpoint(); err != nil {
					logger.Error("events shard checkpoint", zap.Error(err))
				}
			}
		}
	}
}
