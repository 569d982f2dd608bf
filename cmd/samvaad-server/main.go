// Command samvaad-server runs the translation orchestration service: the
// HTTP surface, the connectivity monitor, and the offline replay loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvaadcop/orchestrator/internal/config"
	"github.com/samvaadcop/orchestrator/internal/connectivity"
	"github.com/samvaadcop/orchestrator/internal/conversation"
	"github.com/samvaadcop/orchestrator/internal/httpapi"
	"github.com/samvaadcop/orchestrator/internal/logging"
	"github.com/samvaadcop/orchestrator/internal/orchestrator"
	"github.com/samvaadcop/orchestrator/internal/pipeline"
	"github.com/samvaadcop/orchestrator/internal/provider"
	"github.com/samvaadcop/orchestrator/internal/provider/bhashini"
	"github.com/samvaadcop/orchestrator/internal/provider/contracts"
	"github.com/samvaadcop/orchestrator/internal/provider/polly"
	"github.com/samvaadcop/orchestrator/internal/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "samvaad-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Env)
	log := slog.Default()

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	store, err := conversation.NewStore(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	monitor := connectivity.NewMonitor(client, cfg.ProbeInterval)
	seq := pipeline.New(client, retry.Policy{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay})
	orch := orchestrator.New(store, monitor, seq, log)
	server := httpapi.NewServer(orch, client, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go monitor.Run(ctx)

	log.Info("starting samvaad orchestrator",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"ttsProvider", cfg.TTSProvider)
	return server.ListenAndServe(ctx, cfg.Addr)
}

func buildClient(cfg config.Config) (contracts.Client, error) {
	base, err := bhashini.New(cfg.Bhashini)
	if err != nil {
		return nil, fmt.Errorf("build provider client: %w", err)
	}
	if cfg.TTSProvider == "polly" {
		return provider.WithSynthesizer(base, polly.New(cfg.Polly)), nil
	}
	return base, nil
}
