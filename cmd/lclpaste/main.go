package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lclpaste/cfg"
	"lclpaste/metrics"
	"lclpaste/svc/api"
	"lclpaste/svc/auth"
	"lclpaste/svc/cache"
	"lclpaste/svc/db"
	"lclpaste/svc/lim"
	"lclpaste/svc/secrets"
	"lclpaste/svc/svc"
	"lclpaste/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if os.Getenv("STORE") == cfg.StoreMemory {
			os.Exit(0)
		}
		dbPath := os.Getenv("DATABASE_PATH")
		if dbPath == "" {
			dbPath = "lclpaste.db"
		}
		sqlDB, err := db.NewSQLite(dbPath)
		if err != nil {
			os.Exit(1)
		}
		defer sqlDB.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 1*time.Second)
		defer pingCancel()
		if err := sqlDB.DB().PingContext(pingCtx); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Best effort: a missing .env is the normal case outside development.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting lclpaste API")
	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secretsAdapter, err := secrets.NewAdapter(ctx)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize secrets adapter")
		os.Exit(1)
	}

	tokenKeyB64, err := secretsAdapter.GetSecret(ctx, "AUTH_TOKEN_KEY")
	if err != nil {
		util.Fatal().Err(err).Msg("CRITICAL: failed to load auth token key")
		os.Exit(1)
	}
	tokenKey, err := base64.StdEncoding.DecodeString(tokenKeyB64)
	if err != nil {
		util.Fatal().Err(err).Msg("CRITICAL: invalid auth token key format")
		os.Exit(1)
	}
	resolver, err := auth.NewResolver(tokenKey)
	if err != nil {
		util.Wipe(tokenKey)
		util.Fatal().Err(err).Msg("failed to initialize auth resolver")
		os.Exit(1)
	}
	util.Wipe(tokenKey)

	var store db.Store
	var sqlDB *db.SQLite
	switch c.Store {
	case cfg.StoreMemory:
		store = db.NewMemory()
		util.Info().Msg("in-memory store initialized")
	default:
		sqlDB, err = db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize database")
			os.Exit(1)
		}
		defer sqlDB.Close()
		store = sqlDB
		util.Info().Str("path", c.DatabasePath).Msg("database initialized")
	}

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("CRITICAL: Redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	pasteSvc := svc.NewPaste(store, lruCache, rdb, c)
	util.Info().Int("public_id_length", c.PublicIDLength).Msg("paste service initialized")

	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.ConservativeLimit, rdb, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, pasteSvc, limiter, store, rdb, resolver)

	var quitWAL chan struct{}
	if sqlDB != nil {
		quitWAL = make(chan struct{})
		go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
		util.Info().Msg("WAL maintenance worker started")
	}

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	if quitWAL != nil {
		close(quitWAL)
	}
	cancel()
	util.Info().Msg("Shutdown complete")
}
