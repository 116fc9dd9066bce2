// Command migrate applies or rolls back the climate schema migrations.
//
//	migrate up
//	migrate down -steps 1
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/logger"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/migrations"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [-steps n] up|down")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log.Level, "climate-risk-migrate")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	url := cfg.Database.MigrationURL()
	switch flag.Arg(0) {
	case "up":
		err = migrations.Up(url, log)
	case "down":
		err = migrations.Down(url, *steps, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Migration failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
