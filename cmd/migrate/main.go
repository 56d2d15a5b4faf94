// Command migrate applies or rolls back the schema versioned under
// migrations/, grounded on the RubachokBoss file-service migrator.
// Exit codes: 0 success, 1 config error, 2 database error, 3 operation failure.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/noah-isme/sma-adp-api/pkg/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: load config: %v\n", err)
		return 1
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: open database: %v\n", err)
		return 2
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: build driver: %v\n", err)
		return 2
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: build migrator: %v\n", err)
		return 2
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown direction %q (want up|down)\n", direction)
		return 1
	}

	if err != nil && err != migrate.ErrNoChange {
		fmt.Fprintf(os.Stderr, "migrate: %s: %v\n", direction, err)
		return 3
	}

	fmt.Printf("migrate: %s complete\n", direction)
	return 0
}
