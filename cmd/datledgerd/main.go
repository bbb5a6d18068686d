// Command datledgerd runs the data-asset ledger daemon: the fact journal,
// the ledger, the sealing node, and the operational HTTP surface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DataStream-Network/dat_ledger/internal/config"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/node"
	"github.com/DataStream-Network/dat_ledger/internal/opsserver"
	"github.com/DataStream-Network/dat_ledger/internal/storage"
	"github.com/DataStream-Network/dat_ledger/internal/storage/memory"
	"github.com/DataStream-Network/dat_ledger/internal/storage/postgres"
	"github.com/DataStream-Network/dat_ledger/internal/system"
	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default: DAT_LEDGER_CONFIG or config/datledger.yaml)")
	envFile := flag.String("env-file", "", "optional .env file loaded before config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.NewDefault("datledgerd").WithError(err).Fatal("load env file")
		}
	} else {
		// A local .env is a convenience, not a requirement.
		_ = godotenv.Load()
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.LoadFromPath(*configPath)
		if err != nil {
			logger.NewDefault("datledgerd").WithError(err).Fatal("load config")
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}

	log := logger.New(cfg.Logging)
	log.WithField("storage", cfg.Storage.Driver).Info("starting datledgerd")

	store, err := openStore(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer store.Close()

	ctx := context.Background()

	journal, err := fact.NewJournal(ctx, store, log.WithField("component", "journal"))
	if err != nil {
		log.WithError(err).Fatal("open journal")
	}

	led, err := ledger.New(ctx, ledger.Options{
		Config: ledger.PlatformConfig{
			Treasury: cfg.Ledger.Treasury,
			FeeBps:   cfg.Ledger.FeeBps,
		},
		Admin:           cfg.Ledger.Admin,
		GenesisBalances: cfg.Ledger.GenesisBalances,
	}, journal, log.WithField("component", "ledger"))
	if err != nil {
		log.WithError(err).Fatal("open ledger")
	}

	n, err := node.New(node.Config{
		BlockInterval:       cfg.Node.BlockInterval,
		MaxBlockSubmissions: cfg.Node.MaxBlockSubmissions,
		IntakeRate:          cfg.Node.IntakeRate,
		IntakeBurst:         cfg.Node.IntakeBurst,
		Retention:           cfg.Node.Retention,
		RetentionSchedule:   cfg.Node.RetentionSchedule,
	}, led, journal, store, log.WithField("component", "node"))
	if err != nil {
		log.WithError(err).Fatal("build node")
	}

	server := opsserver.New(cfg.Server, led, journal, n, log.WithField("component", "opsserver"))

	manager := system.NewManager(log.WithField("component", "system"))
	manager.Register(n, server)

	if err := manager.Start(ctx); err != nil {
		log.WithError(err).Fatal("startup failed")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.WithField("signal", received.String()).Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	manager.Stop(stopCtx)
	log.Info("datledgerd stopped")
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.PostgresDSN)
	default:
		return memory.New(), nil
	}
}
