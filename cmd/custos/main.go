package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stroller-protocol/custos/internal/blockchain"
	"github.com/stroller-protocol/custos/internal/commands"
	"github.com/stroller-protocol/custos/internal/config"
	"github.com/stroller-protocol/custos/internal/custos"
	"github.com/stroller-protocol/custos/internal/dedup"
	"github.com/stroller-protocol/custos/internal/http_api"
	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/internal/notificator"
	"github.com/stroller-protocol/custos/internal/repository"
	"github.com/stroller-protocol/custos/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "custos",
		Usage: "Custos keeps an eye on Stroller top-ups and tells watchers about them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "storage", Aliases: []string{"S"}, Usage: "Storage backend (postgres, mongo, memory)"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "mongo-uri", Usage: "MongoDB connection URI"},
			&cli.StringFlag{Name: "redis-url", Usage: "Redis URL used to de-duplicate webhook updates"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.StringFlag{Name: "server-url", Usage: "Public URL of this service, used for the Telegram webhook"},
			&cli.StringFlag{Name: "rpc-url", Aliases: []string{"b"}, Usage: "EVM RPC URL"},
			&cli.StringFlag{Name: "contract-address", Aliases: []string{"s"}, Usage: "StrollManager contract address"},
			&cli.DurationFlag{Name: "rules-check-interval", Usage: "Interval of the periodic rules check (0 disables it)"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("storage") {
		cfg.StorageBackend = c.String("storage")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("mongo-uri") {
		cfg.MongoURI = c.String("mongo-uri")
	}
	if c.IsSet("redis-url") {
		cfg.RedisURL = c.String("redis-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("server-url") {
		cfg.ServerURL = c.String("server-url")
	}
	if c.IsSet("rpc-url") {
		cfg.EVMRPCURL = c.String("rpc-url")
	}
	if c.IsSet("contract-address") {
		cfg.StrollManagerAddress = c.String("contract-address")
	}
	if c.IsSet("rules-check-interval") {
		cfg.RulesCheckInterval = c.Duration("rules-check-interval")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openRepository(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize blockchain services
	chains, closeChains, err := connectChains(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeChains()

	m := metrics.New()
	notif := notificator.NewNotificator(log, db, m)

	var telegram *notificator.TelegramNotificator
	if cfg.TelegramBotToken != "" {
		telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		notif.Register(models.ChannelTelegram, telegram)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN is not set, chat commands and notifications are disabled")
	}

	custosApp := custos.NewCustos(db, chains, notif, m, log, cfg)

	opts := http_api.Options{
		Port:           cfg.APIPort,
		Development:    cfg.Development,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        m,
	}
	if telegram != nil {
		opts.WebhookSecret = cfg.TelegramWebhookSecret
		opts.Commands = commands.NewInterpreter(custosApp, m, log)
		opts.Replier = notif
	}
	if cfg.RedisURL != "" {
		client, err := dedup.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.Guard = dedup.NewUpdateGuard(client, cfg.UpdateDedupTTL)
	}

	apiServer := http_api.NewHTTPServer(custosApp, opts, log)

	if telegram != nil {
		regCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		err := telegram.RegisterWebhook(regCtx, cfg.WebhookURL())
		cancel()
		if err != nil {
			return err
		}
	}

	// Start the application
	if err := custosApp.Start(); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server stopped", "error", err)
		}
	}

	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	if err := custosApp.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (models.Repository, error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	case config.StorageMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return repository.NewMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDB, cfg.MongoTransactions, log)
	case config.StorageMemory:
		log.Warn("Using in-memory storage, data is lost on restart")
		return repository.NewMemoryDB(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func connectChains(ctx context.Context, cfg *config.Config, log *logger.Logger) (*blockchain.Chains, func(), error) {
	var backends []models.BlockchainService
	var closers []func() error
	closeAll := func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}

	if cfg.EVMRPCURL != "" {
		evm := blockchain.NewEVM(cfg.EVMRPCURL, cfg.StrollManagerAddress, cfg.EVMNetworkID, log)
		if err := evm.Run(ctx); err != nil {
			return nil, closeAll, fmt.Errorf("failed to start EVM service: %w", err)
		}
		backends = append(backends, evm)
		closers = append(closers, evm.Close)
	}
	if cfg.CoreRPCURL != "" {
		gocore := blockchain.NewGocore(cfg.CoreRPCURL, cfg.CoreStrollManagerAddress, cfg.CoreNetworkID, log)
		if err := gocore.Run(); err != nil {
			closeAll()
			return nil, closeAll, fmt.Errorf("failed to start Core service: %w", err)
		}
		backends = append(backends, gocore)
		closers = append(closers, gocore.Close)
	}
	if len(backends) == 0 {
		log.Warn("No blockchain RPC configured, rules checks will report unsupported networks")
	}

	chains := blockchain.NewChains(backends...)
	log.Info("Blockchain services ready", "networks", chains.NetworkIDs())
	return chains, closeAll, nil
}
