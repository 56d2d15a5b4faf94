// Command purge-artifact hard-deletes artifact rows, bypassing the normal
// tombstone soft-delete. Destructive; requires --confirm. Exit codes:
// 0 success, 1 config error, 2 database error, 3 operation failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/pkg/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		id      string
		all     bool
		confirm bool
	)
	flag.StringVar(&id, "id", "", "purge a single artifact by id")
	flag.BoolVar(&all, "all", false, "purge every artifact row")
	flag.BoolVar(&confirm, "confirm", false, "required to proceed with a destructive purge")
	flag.Parse()

	if !confirm {
		fmt.Fprintln(os.Stderr, "purge-artifact: refusing to run without --confirm")
		return 1
	}
	if id == "" && !all {
		fmt.Fprintln(os.Stderr, "purge-artifact: one of --id or --all is required")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge-artifact: load config: %v\n", err)
		return 1
	}

	db, err := sqlx.Open("postgres", cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge-artifact: open database: %v\n", err)
		return 2
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "purge-artifact: ping database: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	artifacts := repository.NewArtifactRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	if all {
		count, err := artifacts.PurgeAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "purge-artifact: purge all: %v\n", err)
			return 3
		}
		_ = auditRepo.Create(ctx, &models.AuditEntry{
			ActorType: models.ActorTypeSystem,
			Action:    models.AuditActionPurge,
			Result:    "SUCCESS",
			Target:    "ALL",
		})
		fmt.Printf("purge-artifact: purged %d rows\n", count)
		return 0
	}

	if err := artifacts.PurgeByID(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "purge-artifact: purge %s: %v\n", id, err)
		return 3
	}
	_ = auditRepo.Create(ctx, &models.AuditEntry{
		ActorType: models.ActorTypeSystem,
		Action:    models.AuditActionPurge,
		Result:    "SUCCESS",
		Target:    id,
	})
	fmt.Printf("purge-artifact: purged %s\n", id)
	return 0
}
