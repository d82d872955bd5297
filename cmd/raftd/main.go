// Command raftd hosts one replica of the consensus engine: a gRPC
// transport, a durable WAL-backed store, Prometheus metrics, and a
// read-only HTTP view over applied state. It is the process the
// teacher's cmd/server/main.go played, generalized to either wire
// dialect and restructured around cobra + yaml.v3 configuration
// (SPEC_FULL.md §4.5).
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/quorumdb/raft/pkg/cluster"
	grpcnet "github.com/quorumdb/raft/pkg/grpc"
	"github.com/quorumdb/raft/pkg/metrics"
	"github.com/quorumdb/raft/pkg/raft"
	"github.com/quorumdb/raft/pkg/rateless"
	"github.com/quorumdb/raft/pkg/store"
)

// engine is the subset of raft.Replica / rateless.Replica's method set
// this command needs. Both concrete types satisfy it structurally; no
// shared base type exists because their Leader volatile state differs
// in shape (DESIGN.md's "why rateless is a separate package").
type engine interface {
	Step(raft.Envelope)
	Tick()
	Propose([]byte, raft.ProposalID) error
	Role() raft.RoleKind
	Term() raft.Term
	CommitIndex() int
}

func main() {
	root := &cobra.Command{
		Use:   "raftd",
		Short: "runs one replica of the quorumdb consensus engine",
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "start a replica using the given cluster config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "path to cluster config yaml")
	serve.MarkFlagRequired("config")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", cfg.NodeID), log.LstdFlags)

	peers, err := cfg.peerSet()
	if err != nil {
		return fmt.Errorf("build peer set: %w", err)
	}

	walDir := cfg.WALDir
	if walDir == "" {
		walDir = fmt.Sprintf("/tmp/raftd-wal-%s", cfg.NodeID)
	}
	fileStore, err := store.Open(walDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer fileStore.Close()

	transport := grpcnet.NewTransport(peers.Self(), cfg.ListenAddress, peers.Addresses(), logger)
	if err := transport.Start(); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer transport.Close()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)
	observer := metricsReg.ObserverFor(peers.Self())

	var eng engine
	switch cfg.Dialect {
	case "rateless":
		degreeDist := rateless.DegreeDistribution(256, orDefault(cfg.DegreeC, 0.05), orDefault(cfg.DegreeDelta, 0.2))
		r := rateless.NewReplica(rateless.Config{
			ID:             peers.Self(),
			Peers:          peers.PeerIDs(),
			ElectionBound:  cfg.ElectionBound,
			HeartbeatBound: cfg.HeartbeatBound,
			Batch:          cfg.Batch,
			DegreeDist:     degreeDist,
			Logger:         logger,
			Observer:       observer,
			Rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
			DegreeObserver: metricsReg.ObserveDegree,
		}, fileStore, transport)
		eng = r
	default:
		r := raft.NewReplica(raft.Config{
			ID:             peers.Self(),
			Peers:          peers.PeerIDs(),
			ElectionBound:  cfg.ElectionBound,
			HeartbeatBound: cfg.HeartbeatBound,
			Batch:          cfg.Batch,
			Logger:         logger,
			Observer:       observer,
			Rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
		}, fileStore, transport)
		eng = r
	}

	app := newApplier()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go driveReplica(ctx, eng, transport, fileStore, app)

	if cfg.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/", app.httpHandler())
		httpServer := &http.Server{Addr: cfg.HTTPAddress, Handler: mux}
		go func() {
			logger.Printf("http listening on %s", cfg.HTTPAddress)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Println("shutting down")
	return nil
}

// driveReplica runs the one-goroutine-per-replica loop SPEC_FULL.md §5
// requires: repeatedly drain Receive into Step, then Tick, serializing
// every entry point into this single replica.
func driveReplica(ctx context.Context, eng engine, transport *grpcnet.Transport, st *store.FileStore, app *applier) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				env, ok := transport.Receive()
				if !ok {
					break
				}
				eng.Step(env)
			}
			eng.Tick()
			app.drain(st, eng.CommitIndex())
		}
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// mintProposalID is exposed for callers embedding raftd as a library;
// the binary itself doesn't accept client writes (see applier.go).
func mintProposalID() raft.ProposalID { return uuid.New() }
