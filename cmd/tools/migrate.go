package main

import (
	"flag"
	"log"

	"github.com/baxromumarov/job-ingest/internal/config"
	"github.com/baxromumarov/job-ingest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbURL := flag.String("db", cfg.Storage.DatabaseURL, "Database URL")
	schema := flag.String("schema", "", "Path to schema file (embedded schema when empty)")
	flag.Parse()

	db, err := store.NewStore(*dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(*schema); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations executed successfully")
}
