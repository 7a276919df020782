package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // enables the 'postgres' driver
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/internal/api"
	"github.com/hotswap-labs/hotswapd/internal/config"
	"github.com/hotswap-labs/hotswapd/internal/engine"
	"github.com/hotswap-labs/hotswapd/internal/executor"
	"github.com/hotswap-labs/hotswapd/internal/health"
	"github.com/hotswap-labs/hotswapd/internal/lock"
	"github.com/hotswap-labs/hotswapd/internal/logger"
	"github.com/hotswap-labs/hotswapd/internal/metrics"
	"github.com/hotswap-labs/hotswapd/internal/notify"
	"github.com/hotswap-labs/hotswapd/internal/registry"
	"github.com/hotswap-labs/hotswapd/internal/store"
	"github.com/hotswap-labs/hotswapd/internal/telemetry"
)

func init() {
	if err := godotenv.Load("./.env"); err != nil {
		log.Println("No .env file found, reading from system environment")
	}
}

func main() {
	configPath := flag.String("config", "./configs/orchestrator.yaml", "path to config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	env := cfg.Environment
	if env == "" {
		env = "development"
	}

	shutdown := telemetry.InitTracer(ctx, "orchestrator", os.Getenv("OTLP_ENDPOINT"))
	defer shutdown(ctx)

	lg, err := logger.New(env, "orchestrator")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()
	zlog := lg.Zap()

	metrics.Init("orchestrator")
	if cfg.Server.MetricsPort > 0 {
		metrics.StartServer(fmt.Sprintf("%d", cfg.Server.MetricsPort))
	}

	instance := cfg.Server.InstanceID
	if instance == "" {
		instance, _ = os.Hostname()
	}

	var (
		locks lock.Coordinator
		st    store.Store
	)
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			zlog.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		locks, err = lock.NewPostgresProvider(ctx, db, instance)
		if err != nil {
			zlog.Fatal("init lock provider", zap.Error(err))
		}
		st, err = store.NewPostgresStore(ctx, db)
		if err != nil {
			zlog.Fatal("init execution store", zap.Error(err))
		}
		zlog.Info("using postgres lock provider and store")
	} else {
		locks = lock.NewMemoryProvider(instance)
		st = store.NewMemoryStore()
		zlog.Warn("no database configured, using in-memory lock provider and store")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NATS.URL != "" {
		nn, err := notify.NewNATS(cfg.NATS.URL, zlog)
		if err != nil {
			zlog.Fatal("connect to nats", zap.Error(err))
		}
		defer nn.Close()
		notifier = nn
	}

	var resolver registry.Resolver
	if cfg.Registry.Host != "" {
		resolver = &registry.OCIResolver{Host: cfg.Registry.Host, Token: cfg.Registry.Token}
	}

	eng := engine.New(engine.Config{
		InstanceID:  instance,
		LockLease:   cfg.LockLease(),
		LockTimeout: cfg.LockTimeout(),
	}, engine.Deps{
		Locks:    locks,
		Store:    st,
		Oracle:   health.NewHTTPOracle(cfg.Oracle.URL, zlog),
		Executor: executor.NewAgentExecutor(cfg.Agent.URL, zlog),
		Notifier: notifier,
		Resolver: resolver,
		Logger:   zlog,
	})

	// Resume executions orphaned by a previous instance before taking
	// new traffic.
	if err := eng.Recover(ctx); err != nil {
		zlog.Error("recovery sweep failed", zap.Error(err))
	}

	router := api.NewRouter(eng, st)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zlog.Info("orchestrator listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zlog.Fatal("http server", zap.Error(err))
	}
}
