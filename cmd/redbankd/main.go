package main

import (
	"context"
	"errors"
	"flag"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"redbank/observability/logging"
	"redbank/observability/metrics"
	"redbank/redbank"
	"redbank/rpc"
	"redbank/storage"
	"redbank/upstream"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "redbankd.yaml", "path to redbankd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("REDBANK_ENV"))

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		logging.Setup("redbankd", env, logging.ParseLevel(""))
		stdlog.Fatalf("load config: %v", err)
	}
	log := logging.Setup("redbankd", env, logging.ParseLevel(cfg.LogLevel))

	var db storage.Database
	if cfg.DataDir == "" {
		log.Warn("no data_dir configured, state is held in memory")
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			stdlog.Fatalf("open database at %s: %v", cfg.DataDir, err)
		}
	}
	defer db.Close()

	node, err := upstream.New(upstream.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		AuthToken: cfg.Upstream.AuthToken,
		Timeout:   cfg.UpstreamTimeout(),
		Log:       log,
	})
	if err != nil {
		stdlog.Fatalf("build upstream client: %v", err)
	}

	engine := redbank.NewEngine(cfg.Pool())
	engine.SetState(redbank.NewStore(db))
	engine.SetOracle(node)
	engine.SetTokenSource(node)
	engine.SetBankSource(node)
	engine.SetRegistry(node)
	engine.SetPauses(node)
	engine.SetMetrics(metrics.RedBank())
	engine.SetLogger(log)

	if cfg.GenesisPath != "" {
		if err := applyGenesis(engine, cfg.GenesisPath, log); err != nil {
			stdlog.Fatalf("apply genesis: %v", err)
		}
	}

	server, err := rpc.New(rpc.Config{
		Engine:    engine,
		AuthToken: cfg.AuthToken,
		RateLimit: rate.Limit(cfg.RateLimit.PerSecond),
		RateBurst: cfg.RateLimit.Burst,
		Log:       log,
		Metrics:   promhttp.Handler(),
	})
	if err != nil {
		stdlog.Fatalf("build server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("redbankd listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stdlog.Fatalf("serve http: %v", err)
		}
	}
}

// applyGenesis bootstraps the ledger configuration and lists the genesis
// markets. An already initialised ledger is left untouched, so restarts with
// the same genesis file are safe. Share tokens are deployed out of band and
// registered through the API, completing each market's two-step creation.
func applyGenesis(engine *redbank.Engine, path string, log *slog.Logger) error {
	genesis, err := redbank.LoadGenesis(path)
	if err != nil {
		return err
	}
	if err := engine.Bootstrap(genesis.Config()); err != nil {
		if errors.Is(err, redbank.ErrAlreadyInitialized) {
			log.Info("ledger already initialised, skipping genesis")
			return nil
		}
		return err
	}

	owner := genesis.Config().Owner
	now := uint64(time.Now().Unix())
	for i := range genesis.Markets {
		listing := genesis.Markets[i]
		params, err := listing.Params()
		if err != nil {
			return err
		}
		asset := redbank.ParseAsset(listing.Asset)
		if _, err := engine.CreateMarket(owner, asset, params, now); err != nil {
			return err
		}
		log.Info("genesis market listed, awaiting share token registration", "asset", asset.Label())
	}
	return nil
}

