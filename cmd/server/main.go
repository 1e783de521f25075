package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chat-core/auth"
	"chat-core/contract"
	"chat-core/infrastructure/httpapi"
	"chat-core/infrastructure/presence"
	"chat-core/infrastructure/ratelimit"
	"chat-core/infrastructure/realtime"
	"chat-core/infrastructure/upload"
	"chat-core/internal"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/search"
	"chat-core/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so deferred cleanups execute before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB, Bluge, uploads)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	index := search.NewMessageIndex(blugeWriter, logger)
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	files, err := upload.NewDiskStore(config.UploadDir, config.MaxUploadBytes, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("upload store: %w", err)
	}

	// 3. Presence & transports
	var redisClient *redis.Client
	if config.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer func() { _ = redisClient.Close() }()
	}
	var directory contract.IPresence = presence.NewDirectory()
	if config.Presence == internal.PresenceRedis {
		directory = presence.NewRedisDirectory(redisClient)
	}

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, runtime.OrchestratorConfig{
		BufferSize:         config.EventBufferSize,
		SinkTimeout:        config.SinkTimeout,
		MetricInterval:     config.MetricInterval,
		BacklogWarnPercent: config.BacklogWarnPercent,
	})
	orchestrator.Add(index)
	closeTransport, err := useTransport(orchestrator, config, redisClient, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeTransport()

	// 4. Core services
	emitter := orchestrator.Emitter()
	store := repositories.NewStore(db, logger, config.MaxTxnRetries)
	tokens := auth.NewTokens(config.AuthSecret, config.AuthTokenDuration)
	counter := services.NewNotificationCounter(store, emitter, logger)
	sequencer := services.NewSequencer(store, emitter, directory, logger, services.SequencerConfig{
		DefaultPageSize:  config.DefaultPageSize,
		MaxPageSize:      config.MaxPageSize,
		MaxContentLength: config.MaxContentLength,
	}, counter)
	chats := services.NewChatService(
		services.NewMembershipManager(store, directory, emitter, logger),
		sequencer,
		services.NewReceiptTracker(store, emitter, logger, counter),
		counter, directory, files, index, logger,
	)
	accounts := services.NewAuthService(store, tokens, auth.NewPasswords(auth.Argon2Params{
		Memory:      uint32(config.PasswordMemoryKiB),
		Iterations:  uint32(config.PasswordIterations),
		Parallelism: uint8(config.PasswordThreads),
	}), directory, logger)

	// 5. Realtime pipeline under supervision
	var limiter *ratelimit.KeyedLimiter
	if config.RateLimitPerSecond > 0 {
		limiter = ratelimit.NewKeyedLimiter(config.RateLimitPerSecond, config.RateLimitBurst, logger)
		orchestrator.Supervise(limiter)
	}
	orchestratorDone := make(chan error, 1)
	go func() {
		orchestratorDone <- orchestrator.Start(ctx)
	}()

	health := func() map[string]any {
		report := orchestrator.Health()
		report["transport"] = config.Transport
		return report
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		internal.StartDebugServer(db, config.Port+1, "/inspect", health, logger)
	}

	// 6. HTTP API, blocks until a signal or a listener failure
	ws := realtime.NewHandler(chats, registry, directory, tokens, config.SessionBacklog, logger)
	api := httpapi.NewServer(chats, counter, accounts, files, tokens, ws, health, logger)
	if limiter != nil {
		ws.UseRateLimit(limiter)
		api.UseRateLimit(limiter)
	}
	err = api.ListenAndServe(ctx, config.Address())

	// 7. Drain the workers before storage closes
	logger.Info("Shutting down gracefully...")
	stop()
	orchestrator.Stop()
	if stopErr := <-orchestratorDone; stopErr != nil {
		logger.Error("Orchestrator stopped with error", "error", stopErr)
	}
	if err != nil {
		return exitRuntime, fmt.Errorf("http server error: %w", err)
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// useTransport picks how committed events reach sessions. Broker transports
// come with a relay worker feeding the sessions of this instance.
func useTransport(orchestrator *runtime.Orchestrator, config internal.Config, redisClient *redis.Client,
	logger *slog.Logger) (func(), error) {
	local := orchestrator.LocalTransport()
	switch config.Transport {
	case internal.TransportRedis:
		transport := realtime.NewRedisTransport(redisClient, config.EventsSubject, local, logger)
		orchestrator.UseTransport(transport, transport)
		return func() {}, nil
	case internal.TransportNats:
		conn, err := realtime.ConnectNats(config.NatsURL, logger)
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		transport := realtime.NewNatsTransport(conn, config.EventsSubject, local, logger)
		orchestrator.UseTransport(transport, transport)
		return conn.Close, nil
	case internal.TransportKafka:
		transport := realtime.NewKafkaTransport(config.Brokers(), config.EventsSubject, local, logger)
		orchestrator.UseTransport(transport, transport)
		return func() { _ = transport.Close() }, nil
	default:
		return func() {}, nil
	}
}
