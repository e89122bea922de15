package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arena-core/internal/api"
	"arena-core/internal/arena"
	"arena-core/internal/events"
	"arena-core/internal/market"
	"arena-core/internal/monitor"
	"arena-core/internal/persistence"
	"arena-core/pkg/cache"
	"arena-core/pkg/config"
	"arena-core/pkg/db"
	"arena-core/pkg/roster"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("arena-core %s starting on :%s", version, cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	// Competition roster: one engine per edition, accounts funded equally.
	editionDecls, err := roster.Load(cfg.RosterPath)
	if err != nil {
		log.Fatalf("roster load failed: %v", err)
	}
	editions := make([]*arena.Edition, 0, len(editionDecls))
	for _, decl := range editionDecls {
		ed := arena.NewEdition(decl.Name, cfg.InitialBalance, cfg.HistoryCap, cfg.ReferenceSymbol, bus)
		for _, tr := range decl.Traders {
			if _, err := ed.Engine.CreateAccount(tr.ID, tr.Name); err != nil {
				log.Fatalf("edition %s: create account %s: %v", decl.Name, tr.ID, err)
			}
		}
		editions = append(editions, ed)
		log.Printf("edition %s: %d traders", decl.Name, len(decl.Traders))
	}

	metrics := monitor.NewSystemMetrics()
	metrics.WatchBus(ctx, bus)

	// Write-only trade journal. The engines never read it back.
	if cfg.EnableJournal {
		database, err := db.New(cfg.JournalDBPath)
		if err != nil {
			log.Fatalf("journal db init failed: %v", err)
		}
		defer database.Close()
		if err := db.ApplyMigrations(database); err != nil {
			log.Fatalf("journal migrations failed: %v", err)
		}
		writer := persistence.NewBatchWriter(database.DB, 50, 0)
		writer.Monitor = metrics
		defer writer.Close()
		persistence.NewJournal(writer).Watch(ctx, bus)
		log.Printf("trade journal enabled: %s", cfg.JournalDBPath)
	}

	priceCache := cache.NewShardedPriceCache()
	feed := &market.SimulatedFeed{
		Bus:        bus,
		Symbols:    cfg.Symbols,
		StartPrice: cfg.FeedStartPrice,
		Step:       cfg.FeedStep,
		Interval:   cfg.TickInterval,
		Cache:      priceCache,
	}
	feed.Start(ctx)

	a := arena.New(editions, feed, metrics, cfg.TickInterval)
	go a.Run(ctx)

	server := api.NewServer(bus, a, feed, metrics, api.SystemMeta{
		Symbols:         cfg.Symbols,
		ReferenceSymbol: cfg.ReferenceSymbol,
		TickInterval:    cfg.TickInterval,
		Version:         version,
	}, cfg.JWTSecret, cfg.AdminKey)
	server.PriceCache = priceCache

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")
	cancel()
}
