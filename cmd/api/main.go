package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/example/confidential-ledger/internal/api"
	"github.com/example/confidential-ledger/internal/auth"
	"github.com/example/confidential-ledger/internal/chain"
	"github.com/example/confidential-ledger/internal/config"
	ledgercrypto "github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/security"
	"github.com/example/confidential-ledger/internal/settlement"
	"github.com/example/confidential-ledger/internal/signing"
	"github.com/example/confidential-ledger/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	kms, err := ledgercrypto.NewFileBasedKMS(ledgercrypto.FileBasedKMSConfig{KeyStorePath: cfg.KeyStorePath})
	if err != nil {
		logger.Error("failed to open key store", "error", err)
		os.Exit(1)
	}
	encryptor := ledgercrypto.NewAEADEncryptor(kms)

	// The signer store and SQLite backends share one embedded database.
	sqliteDB, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		os.Exit(1)
	}
	sqliteDB.SetMaxOpenConns(1)
	defer sqliteDB.Close()

	var store ledger.Store
	var records settlement.RecordStore
	var clientStore auth.ClientStore

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
		clientStore = &auth.PostgresClientStore{Pool: pool}
	} else {
		store, err = ledger.NewSQLiteStore(sqliteDB, encryptor)
		if err != nil {
			logger.Error("failed to init sqlite ledger store", "error", err)
			os.Exit(1)
		}
		records, err = settlement.NewSQLiteRecordStore(sqliteDB)
		if err != nil {
			logger.Error("failed to init sqlite record store", "error", err)
			os.Exit(1)
		}
		clientStore, err = auth.NewSQLiteClientStore(ctx, sqliteDB)
		if err != nil {
			logger.Error("failed to init oauth client store", "error", err)
			os.Exit(1)
		}
	}

	// A custody service holds the signing keys when configured. Otherwise
	// signer seeds are local key material and stay sealed in the embedded
	// database regardless of the ledger backend.
	var signers signing.Manager
	if cfg.CustodyGRPCAddr != "" {
		custody, err := signing.DialCustody(cfg.CustodyGRPCAddr)
		if err != nil {
			logger.Error("failed to dial custody service", "addr", cfg.CustodyGRPCAddr, "error", err)
			os.Exit(1)
		}
		defer custody.Close()
		signers = custody
	} else {
		signers, err = signing.NewDBManager(sqliteDB, encryptor)
		if err != nil {
			logger.Error("failed to init signing manager", "error", err)
			os.Exit(1)
		}
	}

	engine := proofs.NewEngine(store, logger, rand.Reader)
	trail := audit.NewChainLogger()

	var coordinator *settlement.Coordinator
	if cfg.ChainGRPCAddr != "" {
		chainClient, err := chain.Dial(cfg.ChainGRPCAddr)
		if err != nil {
			logger.Error("failed to dial chain node", "addr", cfg.ChainGRPCAddr, "error", err)
			os.Exit(1)
		}
		defer chainClient.Close()
		coordinator = settlement.NewCoordinator(store, records, engine, chainClient, signers, trail, logger, chain.WaitInBlock)
	} else {
		logger.Warn("no chain node configured, settlement routes disabled")
		records = nil
	}

	keySet, err := auth.NewKeySet()
	if err != nil {
		logger.Error("failed to create keyset", "error", err)
		os.Exit(1)
	}

	oauthServer := &auth.OAuthServer{
		Store:          clientStore,
		Keys:           keySet,
		Issuer:         "confidential-ledger",
		AccessTokenTTL: 15 * time.Minute,
	}

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "ledger_api",
			Capacity:   20,
			RefillRate: 10,
		}
	}

	allowlist, err := security.ParseCIDRAllowlist(cfg.IPAllowlist)
	if err != nil {
		logger.Error("invalid IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		OAuth:        oauthServer,
		JWTValidator: &auth.JWTValidator{KeySet: keySet, Issuer: "confidential-ledger"},
		Store:        store,
		Engine:       engine,
		Signers:      signers,
		Coordinator:  coordinator,
		Records:      records,
		Auditor:      trail,
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.ListenAddr, "error", err)
		os.Exit(1)
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile:          cfg.TLSCertFile,
			KeyFile:           cfg.TLSKeyFile,
			CAFile:            cfg.TLSClientCA,
			RequireClientAuth: cfg.TLSClientCA != "",
		})
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("confidential ledger api listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
