package main

import (
	"flag"

	migrate "github.com/rubenv/sql-migrate"

	"marketplace/internal/config"
	"marketplace/internal/db"
	"marketplace/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	source := &migrate.FileMigrationSource{Dir: cfg.MigrationsDir}
	direction, max := migrate.Up, 0
	if *down {
		direction, max = migrate.Down, 1
	}
	n, err := migrate.ExecMax(database.DB, "postgres", source, direction, max)
	if err != nil {
		log.Fatalf("failed to apply migrations from %s: %v", cfg.MigrationsDir, err)
	}
	log.Infof("applied %d migrations", n)
}
