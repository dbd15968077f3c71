package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/db"
	"marketplace/internal/handlers"
	"marketplace/internal/logger"
	"marketplace/internal/services"
	"marketplace/internal/store"
	"marketplace/internal/transfer"
	"marketplace/internal/websocket"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)
	if cfg.HookSecret == "" {
		log.Warnf("HOOK_SECRET is not set; deposit hook and session endpoints are disabled")
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	transfers, err := transfer.NewClient(cfg.Gateway.BaseURL,
		transfer.WithAPIKey(cfg.Gateway.APIKey),
		transfer.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}),
		transfer.WithLogger(log.WithField("component", "transfer").Zerolog()),
	)
	if err != nil {
		log.Fatalf("failed to configure transfer gateway: %v", err)
	}

	balances := store.NewBalanceStore(database)
	listings := store.NewListingStore(database)
	registry := store.NewRegistryStore(database)
	ledger := store.NewLedgerStore(database)
	events := store.NewEventStore(database)
	admins := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	service := services.NewMarketService(txRunner, balances, listings, registry, ledger, events, admins, audit, transfers, hub, services.MarketSettings{
		Escrow:            cfg.Market.Contract,
		Commission:        cfg.Market.Commission,
		CommissionAccount: cfg.Market.CommissionAccount,
	}, log.WithField("component", "market"))

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := service.Bootstrap(bootCtx, cfg.Market.AdminAccounts, cfg.Market.SellTokenContracts); err != nil {
		log.Fatalf("failed to seed marketplace settings: %v", err)
	}
	cancelBoot()

	handler := handlers.New(cfg, service, admins, hub, log.WithField("component", "http"))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("marketplace API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
