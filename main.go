package main

import (
	"context"
	"log"

	"gocombine/adapters/api"
	"gocombine/adapters/memory"
	"gocombine/adapters/policyfile"
	"gocombine/adapters/postgres"
	"gocombine/internal"
	"gocombine/internal/compat"
	"gocombine/internal/config"
	"gocombine/internal/errors"
	"gocombine/internal/migration"
	"gocombine/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects to PostgreSQL and applies the schema
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if appConfig.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(appConfig.Database.MaxOpenConns)
	}

	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.DefaultLogger

	var dict *compat.Dictionary
	if appConfig.Combiner.DictionaryFile != "" {
		d, err := policyfile.Load(appConfig.Combiner.DictionaryFile)
		if err != nil {
			log.Fatalf("Failed to load combination dictionary: %v", err)
		}
		log.Printf("Loaded combination dictionary with %d analyses", d.Len())
		dict = &d
	}
	policy, err := compat.NewPolicy(appConfig.Combiner.Policy, dict, appConfig.Combiner.Unknown)
	if err != nil {
		log.Fatalf("Failed to build combination policy: %v", err)
	}

	var repo ports.ResultRepository
	if appConfig.Database.URL != "" {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer db.Close()
		repo = postgres.NewResultRepository(db)
		log.Println("Storing runs in PostgreSQL")
	} else {
		repo = memory.NewResultRepository()
		log.Println("DATABASE_URL not set, storing runs in memory")
	}

	server := api.NewServer(appConfig, policy, dict, repo, logger)
	log.Printf("Starting combination server on port %s (policy %s)", appConfig.Server.Port, policy.Name())
	log.Fatal(server.Start(":" + appConfig.Server.Port))
}
