package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enjuguna-bit/bulksms-sub001/internal/api"
	"github.com/enjuguna-bit/bulksms-sub001/internal/config"
	"github.com/enjuguna-bit/bulksms-sub001/internal/entitlement"
	"github.com/enjuguna-bit/bulksms-sub001/internal/eventbus"
	"github.com/enjuguna-bit/bulksms-sub001/internal/migrations"
	"github.com/enjuguna-bit/bulksms-sub001/internal/pipeline"
	"github.com/enjuguna-bit/bulksms-sub001/internal/platform"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
	"github.com/enjuguna-bit/bulksms-sub001/internal/repository"
	"github.com/enjuguna-bit/bulksms-sub001/internal/retry"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
	"github.com/enjuguna-bit/bulksms-sub001/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (overridable by ENGINE_* env vars, defaults to ENGINE_CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	engine, err := storage.Open(ctx, storage.Options{
		Path:               cfg.DBPath,
		OpenTimeout:        cfg.DBOpenTimeout,
		MaxConcurrentReads: cfg.MaxConcurrentReads,
	})
	if err != nil {
		log.Fatalf("Failed to open storage engine: %v", err)
	}
	defer engine.Close()

	runner := migrations.NewRunner(engine.WriteDB(), log.Default())
	if err := runner.Apply(ctx, migrations.All()); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	q := queue.New(engine, queue.Options{
		Tick:               cfg.QueueTick,
		MaxConcurrentReads: cfg.MaxConcurrentReads,
		BulkBatchSize:      cfg.BulkBatchSize,
	})
	defer q.Stop()

	messaging := repository.NewMessagingRepository(q)
	outbound := repository.NewOutboundRepository(q)
	sendlog := repository.NewSendLogRepository(q)
	audit := repository.NewAuditRepository(q, log.Default())

	var tr transport.Transport
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioTransport, err := transport.NewTwilioTransport(transport.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Twilio transport: %v", err)
		}
		tr = twilioTransport
		log.Println("[Engine] SMS transport: Twilio")
	} else {
		tr = transport.NewNativeTransport(&transport.FakeNativeSender{})
		log.Println("[Engine] SMS transport: native stub (no Twilio credentials configured)")
	}

	var bus eventbus.Bus
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: invalid ENGINE_REDIS_URL, falling back to in-process event bus: %v", err)
			bus = eventbus.NewMemoryBus(256)
		} else {
			client := redis.NewClient(opts)
			bus = eventbus.NewRedisBus(ctx, client, log.Default())
			log.Println("[Engine] Event bus: Redis")
		}
	} else {
		bus = eventbus.NewMemoryBus(256)
		log.Println("[Engine] Event bus: in-process")
	}
	ks := platform.NewMemoryKeystore()
	device := platform.NewStaticDeviceBinding(deviceFingerprint(), platform.SystemClock{})

	entitlementManager, err := entitlement.NewManager(q, ks, device, entitlement.ManagerConfig{
		TrialDuration: time.Duration(cfg.TrialDurationDays) * 24 * time.Hour,
		Audit:         audit,
	})
	if err != nil {
		log.Fatalf("Failed to initialize entitlement manager: %v", err)
	}

	smsPipeline := pipeline.New(messaging, outbound, sendlog, tr, entitlementManager, pipeline.Config{
		MaxRetries:          cfg.MaxRetries,
		TransportTimeout:    cfg.TransportTimeout,
		DedupWindow:         cfg.DuplicateWindow,
		FlushEveryNMessages: cfg.FlushEveryNMessages,
		FlushEvery:          cfg.FlushEvery,
		Audit:               audit,
	})

	retryWorker := retry.New(outbound, sendlog, tr, retry.Config{
		MaxRetries:       cfg.MaxRetries,
		TransportTimeout: cfg.TransportTimeout,
		Audit:            audit,
	}, log.Default())

	workerCtx, cancelWorker := context.WithCancel(ctx)
	retryWorker.Start(workerCtx)

	server := api.NewServer(api.Config{
		BindAddr:    cfg.APIBindAddr,
		Messaging:   messaging,
		Outbound:    outbound,
		Audit:       audit,
		Pipeline:    smsPipeline,
		RetryWorker: retryWorker,
		Entitlement: entitlementManager,
		EventBus:    bus,
		Logger:      log.Default(),
	})

	go func() {
		log.Printf("[Engine] control API listening on %s", cfg.APIBindAddr)
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start control API: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Engine] shutting down...")
	cancelWorker()
	retryWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Engine] control API forced to shutdown: %v", err)
	}

	log.Println("[Engine] exited gracefully")
}

// deviceFingerprint derives a stable per-host identifier for entitlement
// binding. The real on-device fingerprint service is out of scope (see
// internal/platform); hostname is a reasonable stand-in for a desktop or
// single-tenant deployment.
func deviceFingerprint() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown-host"
	}
	return host
}
