// Command utxoindexd runs the chain-following UTXO indexer: it tails an
// upstream node's blocks into an embedded index and serves balance/UTXO
// queries over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ledgertrail/utxoindex/internal/api"
	"github.com/ledgertrail/utxoindex/internal/applier"
	"github.com/ledgertrail/utxoindex/internal/chain"
	"github.com/ledgertrail/utxoindex/internal/config"
	"github.com/ledgertrail/utxoindex/internal/logger"
	"github.com/ledgertrail/utxoindex/internal/metrics"
	"github.com/ledgertrail/utxoindex/internal/rpcclient"
	"github.com/ledgertrail/utxoindex/internal/store"
	"github.com/ledgertrail/utxoindex/internal/utxoset"
)

const pollInterval = 2 * time.Second

func main() {
	configPath := flag.String("config", "utxoindex.json", "path to the indexer's config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	rpc, err := rpcclient.New(ctx, cfg.RPCURL, cfg.RPCTimeout, m)
	if err != nil {
		log.Fatalf("init rpc client: %v", err)
	}

	params := utxoset.Params{P2PKHVersion: cfg.P2PKHVersion, P2SHVersion: cfg.P2SHVersion}
	ap := applier.New(params, cfg.Confirmations)
	mu := &sync.RWMutex{}
	driver := chain.New(rpc, db, ap, mu, cfg.Confirmations, m)

	server := api.NewServer(db, mu, m, cfg.ListenAddr)
	server.Start()
	defer server.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("utxoindexd started")
	runLoop(ctx, driver, m, sigChan)
	logger.Info("utxoindexd shutting down")
}

func runLoop(ctx context.Context, driver *chain.Driver, m *metrics.Metrics, sigChan <-chan os.Signal) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := drainTicks(ctx, driver, m); err != nil {
				log.Printf("tick failed at height %d: %v; halting", driver.Height(), err)
				return
			}
		}
	}
}

// drainTicks calls Tick until the driver catches up to the node's reported
// tip, so a burst of several new blocks doesn't wait for pollInterval between
// each one. A Tick error is returned to the caller.
func drainTicks(ctx context.Context, driver *chain.Driver, m *metrics.Metrics) error {
	for {
		before := driver.Height()
		advanced, err := driver.Tick(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
		m.TipHeight.Set(float64(driver.Height()))
		if driver.Height() > before {
			m.BlocksApplied.Inc()
		}
	}
}
