package main

import (
	"log"
	"os"

	"github.com/seantiz/partload/internal/api"
	"github.com/seantiz/partload/internal/config"
	"github.com/seantiz/partload/internal/engine"
	"github.com/seantiz/partload/internal/source"
	"github.com/seantiz/partload/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("partload: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"session_idle_ttl", cfg.SessionIdleTTL.String(),
		"default_timeout", cfg.DefaultTimeout.String(),
		"default_paging", cfg.DefaultPaging,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	eng := engine.NewEngine(db, source.NewDefaultRegistry(), logger)
	eng.StartJanitor(cfg.SweepInterval, cfg.SessionIdleTTL)
	defer eng.Shutdown()

	srv := api.NewServer(cfg.ListenAddr, db, eng, logger, api.Defaults{
		Timeout: cfg.DefaultTimeout,
		Paging:  cfg.DefaultPaging,
	})

	if err := srv.Run(); err != nil {
		eng.Shutdown()
		log.Fatalf("server error: %v", err)
	}
}
