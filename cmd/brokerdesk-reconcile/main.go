package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerdesk/internal/config"
	"brokerdesk/internal/reconcile"
	"brokerdesk/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "brokerdesk-reconcile ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(os.Getenv("BD_CONFIG"))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	svc := reconcile.NewService(st)
	svc.Logger = logger
	report, err := svc.Run(runCtx)
	if err != nil {
		logger.Fatalf("reconcile run: %v", err)
	}
	logger.Printf("reconcile complete accounts_scanned=%d counters_repaired=%d", report.AccountsScanned, report.CountersRepaired)
}
