package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gocombine/adapters/postgres"
	"gocombine/domain/combination"
	"gocombine/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <database_url> [run_json_file_or_dir...]")
	}

	databaseURL := os.Args[1]
	sources := os.Args[2:]

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		log.Fatalf("Schema migration failed: %v", err)
	}
	log.Printf("Schema at version %s", migrator.Version())

	if len(sources) == 0 {
		return
	}

	var files []string
	for _, src := range sources {
		found, err := findRunFiles(src)
		if err != nil {
			log.Fatalf("Failed to find run files in %s: %v", src, err)
		}
		files = append(files, found...)
	}
	log.Printf("Found %d run files to import", len(files))

	repo := postgres.NewResultRepository(db)
	imported, skipped := 0, 0
	for _, file := range files {
		run, err := loadRunFromFile(file)
		if err != nil {
			log.Printf("Failed to load run from %s: %v", file, err)
			skipped++
			continue
		}
		if err := repo.SaveRun(ctx, run); err != nil {
			log.Printf("Failed to save run %s: %v", run.ID, err)
			skipped++
			continue
		}
		imported++
		log.Printf("Imported run %s (%d points) from %s", run.ID, len(run.Points), filepath.Base(file))
	}

	log.Printf("Import complete: %d imported, %d skipped", imported, skipped)
}

func findRunFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(p, ".json") {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// loadRunFromFile reads a run written by the CLI with --out json.
func loadRunFromFile(filePath string) (*combination.Run, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var run combination.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	if run.ID == "" {
		return nil, os.ErrInvalid
	}
	return &run, nil
}
