package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pairbook/pairbook/params"
	"github.com/pairbook/pairbook/pkg/api"
	"github.com/pairbook/pairbook/pkg/engine"
	"github.com/pairbook/pairbook/pkg/ledger"
	"github.com/pairbook/pairbook/pkg/settle"
	"github.com/pairbook/pairbook/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLogger(os.Getenv("LOG_FILE"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Ledger: pebble-backed balances ----
	store, err := ledger.NewStore(cfg.Store.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Store.DataDir, "err", err)
	}
	defer store.Close()

	bl, err := ledger.NewWithStore(store, sugar)
	if err != nil {
		sugar.Fatalw("ledger_init_failed", "err", err)
	}

	// ---- Engine: matching + settlement fan-in ----
	queue := settle.NewQueue(cfg.Settlement.QueueSize)
	dispatcher := settle.NewWebhookDispatcher(cfg.Settlement.DispatchTimeout, sugar)
	eng := engine.New(bl, dispatcher, queue, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API server ----
	server := api.NewServer(eng, queue, cfg, sugar)
	eng.OnTrade = server.BroadcastTrade
	eng.OnFinalization = server.BroadcastFinalization

	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started", "api_addr", cfg.API.Addr, "data_dir", cfg.Store.DataDir)

	// Completion loop: every settlement outcome is applied here.
	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Fatalw("engine_failed", "err", err)
	}
}
