package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"IndexBridge/internal/basket"
	"IndexBridge/internal/config"
	"IndexBridge/internal/core"
	"IndexBridge/internal/exchange"
	"IndexBridge/internal/fund"
	"IndexBridge/internal/inbound"
	"IndexBridge/internal/ledger"
	"IndexBridge/internal/migration"
	"IndexBridge/internal/observability"
	"IndexBridge/internal/persistence"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/query"
	"IndexBridge/internal/registry"
	"IndexBridge/internal/router"
	"IndexBridge/internal/server"
	"IndexBridge/internal/transport"
)

func main() {
	log := observability.NewLogger("main")

	configPath := flag.String("config", envOrDefault("BRIDGE_CONFIG", "config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	selfChain := protocol.ChainID(cfg.Chain.ID)
	owner := protocol.Address(cfg.Chain.Owner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- NATS relay ---
	nc, js, err := transport.ConnectNATS(cfg.NATS.URL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	relay := transport.NewNATSRelay(js, protocol.Address(cfg.Chain.RelayAuthority), observability.NewLogger("relay"))
	if err := relay.EnsureStream(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure bridge stream")
	}

	// --- Fund state ---
	shares := ledger.NewShareLedger(cfg.Engine.BootstrapShares)
	holdings := ledger.NewHoldingsTracker()
	prices := ledger.NewPriceTable()
	reg := registry.New(owner)
	wrapped := registry.NewWrappedAssets(owner)

	feeMap := make(map[protocol.ChainID]uint64, len(cfg.Fees))
	for _, f := range cfg.Fees {
		feeMap[protocol.ChainID(f.Chain)] = f.Amount
	}
	fees := transport.NewFeeTable(feeMap)
	for _, f := range cfg.Fees {
		if f.TokenSurcharge > 0 {
			fees.SetTokenSurcharge(protocol.ChainID(f.Chain), f.TokenSurcharge)
		}
	}

	var exch exchange.Exchange
	if cfg.Exchange.Mode == "fixed" {
		fixed := exchange.NewFixedRate()
		for _, r := range cfg.Exchange.Rates {
			fixed.SetRate(protocol.Address(r.TokenIn), protocol.Address(r.TokenOut), r.Numerator, r.Denominator)
		}
		exch = fixed
	} else {
		exch = exchange.NoOp{}
	}

	rt := router.New(router.Config{
		SelfChain:      selfChain,
		FundAddress:    protocol.Address(cfg.Chain.FundAddress),
		PurchaseToken:  protocol.Address(cfg.Chain.PurchaseToken),
		PriceAuthority: protocol.Address(cfg.Chain.PriceAuthority),
		Holdings:       holdings,
		Prices:         prices,
		Exchange:       exch,
		Sender:         relay.Endpoint(selfChain, protocol.Address(cfg.Chain.RouterAddress)),
		Quoter:         fees,
		Registry:       reg,
		Wrapped:        wrapped,
		Logger:         observability.NewLogger("router"),
	})
	coord := migration.New(migration.Config{
		SelfChain: selfChain,
		Address:   protocol.Address(cfg.Chain.MigratorAddress),
		Shares:    shares,
		Registry:  reg,
		Sender:    relay.Endpoint(selfChain, protocol.Address(cfg.Chain.MigratorAddress)),
		Quoter:    fees,
		Logger:    observability.NewLogger("migration"),
	})
	f := fund.New(fund.Config{
		ChainID:  selfChain,
		Address:  protocol.Address(cfg.Chain.FundAddress),
		Owner:    owner,
		Shares:   shares,
		Holdings: holdings,
		Router:   rt,
		Migrator: coord,
		Quoter:   fees,
		Logger:   observability.NewLogger("fund"),
	})
	handler := inbound.New(inbound.Config{
		SelfChain:       selfChain,
		RelayAuthority:  protocol.Address(cfg.Chain.RelayAuthority),
		FundAddress:     protocol.Address(cfg.Chain.FundAddress),
		RouterAddress:   protocol.Address(cfg.Chain.RouterAddress),
		MigratorAddress: protocol.Address(cfg.Chain.MigratorAddress),
		Registry:        reg,
		Fund:            f,
		Router:          rt,
		Logger:          observability.NewLogger("inbound"),
	})

	// --- Engine ---
	deliveryLog := persistence.NewDeliveryLog(db)
	deduper := core.NewDeliveryDeduper(cfg.Engine.DedupCacheSize, deliveryLog)

	deliveries := make(chan transport.Delivery, 1024)
	persistChan := make(chan core.Output, 1024)

	engine := core.New(core.Config{
		Fund:        f,
		Handler:     handler,
		Router:      rt,
		Shares:      shares,
		Holdings:    holdings,
		Prices:      prices,
		Registry:    reg,
		Wrapped:     wrapped,
		Deduper:     deduper,
		Deliveries:  deliveries,
		PersistChan: persistChan,
		Metrics:     metrics,
		Logger:      observability.NewLogger("engine"),
	})

	// --- Warm restart ---
	snapMgr := persistence.NewSnapshotManager(db, metrics)
	snap, err := snapMgr.LoadLatest(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot")
	}
	if snap != nil {
		if err := engine.Restore(owner, snap); err != nil {
			log.Fatal().Err(err).Msg("restore snapshot")
		}
	} else {
		log.Info().Msg("no snapshot found, cold start")
	}

	// Deliveries settled after the snapshot was taken are still in the
	// database; warm them so redeliveries from the gap are suppressed
	// without a DB round trip.
	if recent, err := deliveryLog.RecentDeliveryIDs(ctx, cfg.Engine.DedupCacheSize); err != nil {
		log.Warn().Err(err).Msg("warm delivery cache")
	} else {
		deduper.Warm(recent)
	}

	go engine.Run(ctx)

	// --- Apply static configuration ---
	for _, p := range cfg.Peers {
		err := engine.SetPeers(ctx, owner, protocol.ChainID(p.Chain), registry.PeerSet{
			Fund:     protocol.Address(p.Fund),
			Router:   protocol.Address(p.Router),
			Migrator: protocol.Address(p.Migrator),
		})
		if err != nil {
			log.Fatal().Err(err).Uint16("chain", p.Chain).Msg("set peers")
		}
	}
	for _, w := range cfg.WrappedAssets {
		err := engine.RegisterWrappedAsset(ctx, owner,
			protocol.ChainID(w.HomeChain), protocol.Address(w.HomeAddress), protocol.Address(w.Local))
		if err != nil {
			log.Fatal().Err(err).Str("local", w.Local).Msg("register wrapped asset")
		}
	}
	if status, err := engine.Status(ctx); err == nil && !status.Initialized && len(cfg.Basket) > 0 {
		entries := basketEntries(cfg)
		if err := engine.InitializeFund(ctx, owner, entries); err != nil {
			log.Fatal().Err(err).Msg("initialize fund from config")
		}
		log.Info().Int("assets", len(entries)).Msg("fund initialized from config")
	}

	// --- Subscribe to inbound deliveries ---
	if err := relay.Subscribe(ctx, selfChain, deliveries); err != nil {
		log.Fatal().Err(err).Msg("relay subscribe")
	}

	errChan := make(chan error, 4)

	// --- Persistence worker ---
	worker := persistence.NewWorker(db, persistChan,
		cfg.Engine.PersistBatchSize,
		time.Duration(cfg.Engine.PersistFlushMs)*time.Millisecond,
		metrics, observability.NewLogger("persistence"))
	go func() {
		errChan <- worker.Run(ctx)
	}()

	// --- Periodic snapshots ---
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Engine.SnapshotCron, func() {
		snapCtx, snapCancel := context.WithTimeout(ctx, 30*time.Second)
		defer snapCancel()
		s, err := engine.Snapshot(snapCtx)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot capture failed")
			return
		}
		if err := snapMgr.Save(snapCtx, s); err != nil {
			log.Warn().Err(err).Msg("snapshot save failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.Engine.SnapshotCron).Msg("snapshot schedule")
	}
	scheduler.Start()

	// --- Channel gauges ---
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("deliveries", len(deliveries), cap(deliveries))
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
			}
		}
	}()

	// --- HTTP server ---
	qs := query.NewService(db)
	srv, err := server.New(cfg.HTTP.ListenAddr, server.NewService(engine, qs), health, observability.NewLogger("http"))
	if err != nil {
		log.Fatal().Err(err).Msg("build http server")
	}
	go func() {
		errChan <- srv.Run(ctx)
	}()

	health.SetReady(true)
	log.Info().
		Uint16("chain", cfg.Chain.ID).
		Str("http", cfg.HTTP.ListenAddr).
		Msg("node ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// Final snapshot before the engine stops.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if s, err := engine.Snapshot(shutdownCtx); err == nil {
		if err := snapMgr.Save(shutdownCtx, s); err != nil {
			log.Error().Err(err).Msg("final snapshot failed")
		} else {
			log.Info().Msg("final snapshot saved")
		}
	}

	cancel()
	relay.Stop()
	scheduler.Stop()

	log.Info().Msg("shutdown complete")
}

func basketEntries(cfg *config.Config) []basket.Entry {
	entries := make([]basket.Entry, 0, len(cfg.Basket))
	for _, e := range cfg.Basket {
		entries = append(entries, basket.Entry{
			AssetContract: protocol.Address(e.AssetContract),
			HomeChain:     protocol.ChainID(e.HomeChain),
			Weight:        e.Weight,
		})
	}
	return entries
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
