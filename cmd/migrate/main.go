// Command migrate applies or rolls back the Postgres schema. SQLite
// databases are created in place and need no migrations.
package main

import (
	"context"
	"flag"
	"os"

	"dgc-transports/internal/config"
	"dgc-transports/internal/database"
	"dgc-transports/internal/database/migrations"
	"dgc-transports/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewWriterLogger(os.Stdout)

	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}
	if database.IsSQLite(cfg.Database.DSN) {
		log.Info("MIGRATION", "SQLite schema is created on open, nothing to migrate")
		return
	}

	bunDB, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, log)
	defer runner.Close()

	if *down {
		if err := runner.MigrateDown(); err != nil {
			log.Fatal("MIGRATION", err.Error())
		}
		log.Info("MIGRATION", "✅ All migrations rolled back")
		return
	}
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	log.Info("MIGRATION", "✅ Database schema is up to date")
}
