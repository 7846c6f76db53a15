package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fractional-finance/frabric-protocol/internal/config"
	"github.com/fractional-finance/frabric-protocol/pkg/api"
	"github.com/fractional-finance/frabric-protocol/pkg/event"
	"github.com/fractional-finance/frabric-protocol/pkg/governance"
	"github.com/fractional-finance/frabric-protocol/pkg/governance/dispatch"
	"github.com/fractional-finance/frabric-protocol/pkg/governance/store"
	"github.com/fractional-finance/frabric-protocol/pkg/membership"
	"github.com/fractional-finance/frabric-protocol/pkg/token"
	"github.com/fractional-finance/frabric-protocol/pkg/treasury"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	promRegistry := prometheus.NewRegistry()
	bus := event.NewBus(promRegistry, logger)

	ledger := token.NewLedger()
	for _, alloc := range cfg.Genesis {
		amount, err := alloc.Amount()
		if err != nil {
			logger.Error("invalid genesis allocation", "error", err)
			os.Exit(1)
		}
		if err := ledger.Mint(alloc.Address, amount); err != nil {
			logger.Error("failed to mint genesis allocation",
				"address", alloc.Address, "error", err)
			os.Exit(1)
		}
	}
	// Seal genesis balances into history before any proposals
	ledger.AdvanceBlock()

	params := &governance.Params{
		VotingPeriod:      cfg.Governance.VotingPeriod,
		ExecutionDelay:    cfg.Governance.ExecutionDelay,
		QuorumNumerator:   cfg.Governance.QuorumNumerator,
		QuorumDenominator: cfg.Governance.QuorumDenominator,
	}

	registry := dispatch.NewRegistry()
	engine := governance.NewEngine(
		ledger, ledger, store.NewMemoryStore(), registry, bus, params, logger)

	members := membership.NewManager(engine, logger)
	if err := members.RegisterHandlers(registry); err != nil {
		logger.Error("failed to register membership handlers", "error", err)
		os.Exit(1)
	}

	treas := treasury.New(cfg.Node.TreasuryAddress, ledger, engine, logger)
	if err := treas.RegisterHandlers(registry); err != nil {
		logger.Error("failed to register treasury handlers", "error", err)
		os.Exit(1)
	}

	// Text proposals carry no effect beyond their record
	if err := registry.Register(governance.KindText, func(uint64, governance.Kind) error {
		return nil
	}); err != nil {
		logger.Error("failed to register text handler", "error", err)
		os.Exit(1)
	}

	// Advance the ledger height on a fixed interval so proposal checkpoints
	// move with wall time
	ticker := time.NewTicker(cfg.Node.BlockInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			ledger.AdvanceBlock()
		}
	}()

	server := api.NewServer(
		engine, ledger, members, treas, promRegistry, cfg.Node.APIPort, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Node.ShutdownTimeout)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
