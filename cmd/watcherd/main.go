package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/confidential-ledger/internal/chain"
	"github.com/example/confidential-ledger/internal/config"
	ledgercrypto "github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/settlement"
	"github.com/example/confidential-ledger/internal/watcher"
	"github.com/example/confidential-ledger/pkg/audit"
)

// watcherd tails the chain and reconciles local balances and settlement
// records against on-chain events.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.ChainGRPCAddr == "" {
		logger.Error("CHAIN_GRPC_ADDR is required for the watcher")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kms, err := ledgercrypto.NewFileBasedKMS(ledgercrypto.FileBasedKMSConfig{KeyStorePath: cfg.KeyStorePath})
	if err != nil {
		logger.Error("failed to open key store", "error", err)
		os.Exit(1)
	}
	encryptor := ledgercrypto.NewAEADEncryptor(kms)

	var store ledger.Store
	var records settlement.RecordStore

	if cfg.UsePostgres() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store, err = ledger.NewPostgresStore(ctx, pool, encryptor)
		if err != nil {
			logger.Error("failed to init postgres ledger store", "error", err)
			os.Exit(1)
		}
		records, err = settlement.NewPostgresRecordStore(ctx, pool)
		if err != nil {
			logger.Error("failed to init postgres record store", "error", err)
			os.Exit(1)
		}
	} else {
		db, err := sql.Open("sqlite3", cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite database", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(1)
		defer db.Close()

		store, err = ledger.NewSQLiteStore(db, encryptor)
		if err != nil {
			logger.Error("failed to init sqlite ledger store", "error", err)
			os.Exit(1)
		}
		records, err = settlement.NewSQLiteRecordStore(db)
		if err != nil {
			logger.Error("failed to init sqlite record store", "error", err)
			os.Exit(1)
		}
	}

	chainClient, err := chain.Dial(cfg.ChainGRPCAddr)
	if err != nil {
		logger.Error("failed to dial chain node", "addr", cfg.ChainGRPCAddr, "error", err)
		os.Exit(1)
	}
	defer chainClient.Close()

	engine := proofs.NewEngine(store, logger, rand.Reader)
	trail := audit.NewChainLogger()
	w := watcher.New(chainClient, store, records, engine, trail, logger)

	// Metrics-only HTTP endpoint; the watcher serves no API.
	metricsSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("chain watcher starting", "chain", cfg.ChainGRPCAddr, "env", cfg.Environment)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("chain watcher stopped")
}
