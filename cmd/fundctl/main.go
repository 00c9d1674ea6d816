package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fundLedger/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "fundctl",
		Short:        "Fund and vault ledger",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("as", "", "caller identity (base58)")
	flags.String("store", "sqlite", "ledger backend (sqlite, postgres, memory)")
	flags.String("db-path", "./data/ledger.db", "SQLite database path")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("journal", "./data/journal.jsonl", "journal JSONL path, \"db\" for the backend's table, empty to disable")
	flags.String("fund-program", config.DefaultProgram, "owner identity for registry and fund records")
	flags.String("vault-program", config.DefaultProgram, "owner identity for vault records")
	flags.Uint8("decimals", 6, "decimals used to scale amount arguments")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInitCmd(),
		newGrantCmd(),
		newRevokeCmd(),
		newRunCmd(),
		newApplyCmd(),
		newShowCmd(),
		newJournalCmd(),
		newWatchCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Relay risk-contract triggers into OpenRedemption",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("rpc", "", "EVM RPC URL")
	cmd.Flags().String("trigger-contract", "", "risk contract address")
	cmd.Flags().String("oracle", "", "risk oracle identity submitting OpenRedemption (base58)")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().String("checkpoint", "./data/relay_checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("schedule", "@every 30s", "cron schedule for polls")
	cmd.Flags().Uint64("confirmations", 0, "blocks behind the head before a trigger is acted on")
	cmd.Flags().Duration("call-timeout", 15*time.Second, "timeout for each RPC call")
	cmd.Flags().Bool("once", false, "poll once and exit")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
