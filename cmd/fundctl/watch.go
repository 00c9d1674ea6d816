package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundLedger/internal/chain"
	"fundLedger/internal/config"
	"fundLedger/internal/trigger"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRelay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	once, _ := cmd.Flags().GetBool("once")

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	contract, err := trigger.ParseContract(cfg.Contract)
	if err != nil {
		return err
	}
	oracle, err := trigger.ParseOracle(cfg.Oracle)
	if err != nil {
		return err
	}

	s, err := openSessionWith(cfg.Config)
	if err != nil {
		return err
	}
	defer s.Close()
	logger := s.logger

	chainClient, err := chain.NewClient(s.ctx, cfg.RPCURL, chain.Options{
		Confirmations: cfg.Confirmations,
		CallTimeout:   cfg.CallTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var checkpoint trigger.Checkpointer = trigger.NewFileCheckpoint(cfg.Checkpoint, cfg.CheckpointEnabled)
	if s.env.postgres != nil && cfg.CheckpointEnabled {
		checkpoint = trigger.StateCheckpoint{Store: s.env.postgres, Name: "relay:" + contract.Hex()}
	}

	relay := trigger.NewRelay(trigger.Config{
		Contract:     contract,
		Oracle:       oracle,
		FromBlock:    cfg.FromBlock,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, s.env.router, checkpoint, logger)

	logger.Info("relay start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", contract.Hex()),
		zap.String("oracle", oracle.String()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("schedule", cfg.Schedule),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	poll := func() error {
		summary, err := relay.Poll(s.ctx)
		if err != nil {
			logger.Error("relay poll failed", zap.Error(err))
			return err
		}
		logger.Info("relay poll done",
			zap.Uint64("from", summary.From),
			zap.Uint64("to", summary.To),
			zap.Int("events", summary.Events),
			zap.Int("submitted", summary.Submitted),
			zap.Int("skipped", summary.Skipped),
		)
		return nil
	}

	if once {
		return poll()
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(cfg.Schedule, func() { _ = poll() }); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	_ = poll()
	scheduler.Start()

	<-s.ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info("relay stopped")
	return nil
}
