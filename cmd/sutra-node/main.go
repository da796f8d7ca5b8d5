// Command sutra-node runs one storage node: a single shard's segment, WAL,
// graph index, and vector index (internal/store) behind the C4 wire
// protocol (internal/wireproto). It is the binary internal/agent's
// ProcessPlatform spawns, one process per shard.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/config"
	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/store"
	"github.com/sutra-db/sutra/internal/vectorindex"
	"github.com/sutra-db/sutra/internal/wireproto"
)

// maintenanceInterval is how often the decay/prune pass runs against the
// graph index.
const maintenanceInterval = time.Minute

// halfLife and pruneMinScore are the default decay/prune parameters; a real
// deployment would likely source these from Config, but no environment
// variables are defined for them yet, so sensible constants stand in.
const (
	halfLife      = 24 * time.Hour
	pruneMinScore = 0.05
)

func main() {
	shardID := flag.String("shard", "", "shard id this node serves")
	port := flag.Int("port", 0, "TCP port to listen on (0 uses STORAGE_PORT)")
	storagePath := flag.String("storage-path", "", "shard data directory (overrides STORAGE_PATH)")
	tenantMode := flag.Bool("tenant-mode", false, "enable multi-tenant isolation for this shard")
	metric := flag.String("metric", "cosine", "vector distance metric: cosine|euclidean")
	adminPort := flag.Int("admin-port", 0, "HTTP port for /metrics and /health (0 disables)")
	tlsCert := flag.String("tls-cert", "", "PEM certificate for the wire listener (TLS off when empty)")
	tlsKey := flag.String("tls-key", "", "PEM private key for the wire listener")
	flag.Int("memory", 0, "advisory memory ceiling in MB (enforced by the agent's platform, not this process)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sutra-node: config:", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if *shardID == "" {
		*shardID = "default"
	}
	dir := cfg.StoragePath
	if *storagePath != "" {
		dir = *storagePath
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatal("create storage dir", zap.Error(err))
	}

	listenPort := cfg.StoragePort
	if *port != 0 {
		listenPort = *port
	}

	s, err := store.Open(store.Options{
		Dir:                 dir,
		ShardName:           *shardID,
		Dimension:           cfg.VectorDimension,
		Metric:              vectorindex.ParseMetric(*metric),
		TenantMode:          *tenantMode,
		CheckpointThreshold: cfg.CheckpointThresholdBytes(),
		HNSWM:               cfg.HNSWM,
		HNSWEfConstruction:  cfg.HNSWEfConstruction,
		Logger:              logger,
		Registerer:          prometheus.DefaultRegisterer,
	})
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	node := storagenode.New(*shardID, s, logger)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	if *tlsCert != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			logger.Fatal("load tls keypair", zap.Error(err))
		}
		// The handshake happens before any application frame; clients must
		// dial with wireproto.DialTLS.
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	}

	server := wireproto.NewServer(ln, &wireproto.NodeHandler{Node: node}, wireproto.ConnOptions{
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runMaintenance(ctx, s, logger)
	go runCheckpointWatcher(ctx, s, logger)
	if *adminPort > 0 {
		go serveAdmin(*adminPort, logger)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	logger.Info("storage node listening",
		zap.String("shard", *shardID), zap.Int("port", listenPort), zap.String("dir", dir))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("serve", zap.Error(err))
		}
	}

	shutdown(server, s, logger)
}

// serveAdmin exposes the Prometheus /metrics endpoint and a liveness
// /health check, separate from the wire-protocol port so scrapers never
// speak the binary framing.
func serveAdmin(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		logger.Warn("admin server", zap.Error(err))
	}
}

// runMaintenance drives the half-life decay and prune pass on its own
// goroutine so it never contends with request handling
// except for the index's own writer lock.
func runMaintenance(ctx context.Context, s *store.Store, logger *zap.Logger) {
	t := time.NewTicker(maintenanceInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			pruned := s.Index().DecayAndPrune(now, halfLife, pruneMinScore)
			if pruned > 0 {
				logger.Info("decay/prune pass", zap.Int("pruned", pruned))
			}
		}
	}
}

// runCheckpointWatcher triggers a checkpoint whenever the WAL has grown
// past the configured threshold.
func runCheckpointWatcher(ctx context.Context, s *store.Store, logger *zap.Logger) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.ShouldCheckpoint() {
				if err := s.Checkpoint(); err != nil {
					logger.Error("checkpoint", zap.Error(err))
				} else {
					logger.Info("checkpoint complete")
				}
			}
		}
	}
}

// shutdown performs the ordered teardown: stop
// accepting, drain in-flight, checkpoint, close WAL, unmap segment.
func shutdown(server *wireproto.Server, s *store.Store, logger *zap.Logger) {
	logger.Info("shutting down")
	if err := server.Close(); err != nil {
		logger.Warn("server close", zap.Error(err))
	}
	if err := s.Checkpoint(); err != nil {
		logger.Warn("final checkpoint", zap.Error(err))
	}
	if err := s.Close(); err != nil {
		logger.Warn("store close", zap.Error(err))
	}
}
