package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/ledgerdesk/api/internal/config"
	"github.com/ledgerdesk/api/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	closeLog, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		log.Fatalf("setup logger: %v", err)
	}

	err = Execute(cfg)
	closeLog() //nolint:errcheck
	if err != nil {
		os.Exit(1)
	}
}
