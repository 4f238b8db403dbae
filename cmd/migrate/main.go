package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// target is a database that migrations are applied to.
type target interface {
	EnsureSchemaMigrationsTable(ctx context.Context) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
	Execute(ctx context.Context, m Migration) error
	Record(ctx context.Context, m Migration, appliedBy string) error
	Close() error
}

var (
	backend       = flag.String("backend", "postgres", "Migration target: postgres or bigquery")
	databaseURL   = flag.String("database-url", "", "Postgres connection URL (or set DATABASE_URL env)")
	projectID     = flag.String("project", "", "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
	datasetID     = flag.String("dataset", "statement_categorizer", "BigQuery dataset ID")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Path to migrations directory (default migrations/<backend>)")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	ctx := context.Background()

	var (
		t            target
		err          error
		placeholders map[string]string
	)
	switch *backend {
	case "postgres":
		url := firstNonEmpty(*databaseURL, os.Getenv("DATABASE_URL"))
		if url == "" {
			log.Fatal("Error: -database-url flag or DATABASE_URL is required.")
		}
		t, err = newPostgresTarget(ctx, url)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		log.Printf("Connected to Postgres")
	case "bigquery":
		project := firstNonEmpty(*projectID, os.Getenv("GOOGLE_CLOUD_PROJECT"))
		if project == "" {
			log.Fatal("Error: -project flag is required. Please specify your GCP project ID.")
		}
		t, err = newBigQueryTarget(ctx, project, *datasetID)
		if err != nil {
			log.Fatalf("Failed to create BigQuery client: %v", err)
		}
		placeholders = map[string]string{"PROJECT_ID": project, "DATASET_ID": *datasetID}
		log.Printf("Connected to BigQuery project: %s, dataset: %s", project, *datasetID)
	default:
		log.Fatalf("Unknown backend %q", *backend)
	}
	defer t.Close()

	dir := *migrationsDir
	if dir == "" {
		dir = "migrations/" + *backend
	}

	if err := run(ctx, t, dir, placeholders); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, t target, dir string, placeholders map[string]string) error {
	if err := t.EnsureSchemaMigrationsTable(ctx); err != nil {
		return err
	}

	migrations, err := readMigrations(dir, placeholders)
	if err != nil {
		return err
	}
	log.Printf("Found %d migration files", len(migrations))

	applied, err := t.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	log.Printf("Found %d already applied migrations", len(applied))

	todo, drifted := pending(migrations, applied)
	for _, m := range drifted {
		log.Printf("  [WARN] %04d_%s changed after it was applied", m.Version, m.Name)
	}

	for _, m := range todo {
		log.Printf("  [RUN]  %04d_%s", m.Version, m.Name)
		if err := t.Execute(ctx, m); err != nil {
			return err
		}
		if err := t.Record(ctx, m, *appliedBy); err != nil {
			return err
		}
		log.Printf("  [OK]   %04d_%s", m.Version, m.Name)
	}

	if len(todo) == 0 {
		log.Println("No new migrations to apply. Database is up to date.")
	} else {
		log.Printf("Successfully applied %d migration(s)", len(todo))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
