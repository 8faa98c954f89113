package main

import (
	"context"
	"flag"
	"log"

	"github.com/enjuguna-bit/bulksms-sub001/internal/config"
	"github.com/enjuguna-bit/bulksms-sub001/internal/migrations"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
)

func main() {
	var (
		statusOnly = flag.Bool("status", false, "Report the current schema version and exit without applying anything")
		dbPath     = flag.String("db", "", "Override ENGINE_DB_PATH for this run")
		configPath = flag.String("config", "", "Path to a YAML config file (overridable by ENGINE_* env vars, defaults to ENGINE_CONFIG_FILE)")
	)
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
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

	if *statusOnly {
		version, err := runner.CurrentVersion(ctx)
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		log.Printf("schema version: %d (latest available: %d)", version, latestVersion(migrations.All()))
		return
	}

	if err := runner.Apply(ctx, migrations.All()); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Println("migrations applied")
}

func latestVersion(set []migrations.Migration) int {
	max := 0
	for _, m := range set {
		if m.Version > max {
			max = m.Version
		}
	}
	return max
}
