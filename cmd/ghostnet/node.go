package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/ghostnet-labs/ghostnet/config"
	"github.com/ghostnet-labs/ghostnet/consensus"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/entropy"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/feed"
	"github.com/ghostnet-labs/ghostnet/indexer"
	"github.com/ghostnet-labs/ghostnet/logging"
	"github.com/ghostnet-labs/ghostnet/rpc"
	"github.com/ghostnet-labs/ghostnet/storage"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/wallet"
)

var nlog = log.New("module", "node")

func NodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run the sequencer, RPC server and activity feed",
		RunE:  runNode,
	}
	cmd.Flags().StringP("config", "c", "ghostnet.toml", "path to config file")
	return cmd
}

func runNode(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	keyPath, _ := cmd.Flags().GetString("key")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config %s not found; create one with `ghostnet init`", cfgPath)
		}
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	privKey, err := wallet.LoadKey(keyPath, password())
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	// ---- storage ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}
	history, err := entropy.NewHistory(db, cfg.Entropy.HistoryDepth)
	if err != nil {
		return fmt.Errorf("entropy history: %w", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		if err := history.Record(0, genesis.Hash); err != nil {
			return fmt.Errorf("record genesis hash: %w", err)
		}
		nlog.Info("Genesis block committed", "hash", genesis.Hash, "chain", cfg.Genesis.ChainID)
	}

	source, err := entropy.NewSource(bc, history, cfg.Entropy.CacheSize)
	if err != nil {
		return fmt.Errorf("entropy source: %w", err)
	}
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()
	exec := vm.NewExecutor(state, emitter, source)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, history, privKey)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- activity feed ----
	// The feed outlives the sequencer so the last block's events are flushed.
	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	var feedWG sync.WaitGroup
	if cfg.Feed.DSN != "" {
		sink, err := feed.OpenPostgres(ctx, cfg.Feed.DSN)
		if err != nil {
			return fmt.Errorf("activity feed: %w", err)
		}
		f := feed.New(sink, cfg.Feed.QueueSize)
		f.Attach(emitter)
		feedWG.Add(1)
		go func() {
			defer feedWG.Done()
			f.Run(feedCtx)
		}()
	}

	// ---- RPC ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, cfg.RPCAuthToken, tlsCfg)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}

	// ---- sequencer ----
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(ctx, cfg.BlockInterval())
	}()
	nlog.Info("Node running", "sequencer", privKey.Address().Hex(), "height", bc.Height(), "interval", cfg.BlockInterval())

	<-ctx.Done()
	nlog.Info("Shutting down")

	// Stop intake first, then the sequencer, then drain the feed.
	if err := rpcServer.Stop(); err != nil {
		nlog.Warn("RPC shutdown", "err", err)
	}
	wg.Wait()
	stopFeed()
	feedWG.Wait()
	nlog.Info("Shutdown complete")
	return nil
}
