package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultProgram is the owner identity records derive under unless
// configured otherwise.
const DefaultProgram = "8pRSLehr1aSzXY38S9RLnmNHmniVWcNjgNfRhEYpL7VF"

// Config holds ledger settings loaded from flags, env, or config file.
type Config struct {
	Store        string
	DBPath       string
	PGDSN        string
	Journal      string
	FundProgram  string
	VaultProgram string
	Decimals     uint8
	As           string
	LogLevel     string
}

// RelayConfig adds the risk-trigger relay settings.
type RelayConfig struct {
	Config

	RPCURL            string
	Contract          string
	Oracle            string
	FromBlock         uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	Schedule          string
	Confirmations     uint64
	CallTimeout       time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := read(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

// LoadRelay is Load plus the relay keys.
func LoadRelay(cfgFile string, flags *pflag.FlagSet) (RelayConfig, error) {
	v, err := read(cfgFile, flags)
	if err != nil {
		return RelayConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return RelayConfig{}, err
	}
	return RelayConfig{
		Config:            base,
		RPCURL:            v.GetString("rpc"),
		Contract:          v.GetString("trigger-contract"),
		Oracle:            v.GetString("oracle"),
		FromBlock:         v.GetUint64("from"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Schedule:          v.GetString("schedule"),
		Confirmations:     v.GetUint64("confirmations"),
		CallTimeout:       v.GetDuration("call-timeout"),
	}, nil
}

func read(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", "sqlite")
	v.SetDefault("db-path", "./data/ledger.db")
	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("fund-program", DefaultProgram)
	v.SetDefault("vault-program", DefaultProgram)
	v.SetDefault("decimals", 6)
	v.SetDefault("log-level", "info")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("checkpoint", "./data/relay_checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("schedule", "@every 30s")
	v.SetDefault("confirmations", uint64(0))
	v.SetDefault("call-timeout", 15*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	store := strings.ToLower(strings.TrimSpace(v.GetString("store")))
	switch store {
	case "sqlite", "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unknown store %q (want sqlite, postgres or memory)", store)
	}
	decimals := v.GetInt("decimals")
	if decimals < 0 || decimals > 18 {
		return Config{}, fmt.Errorf("decimals %d out of range", decimals)
	}
	return Config{
		Store:        store,
		DBPath:       v.GetString("db-path"),
		PGDSN:        v.GetString("pg-dsn"),
		Journal:      v.GetString("journal"),
		FundProgram:  v.GetString("fund-program"),
		VaultProgram: v.GetString("vault-program"),
		Decimals:     uint8(decimals),
		As:           v.GetString("as"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
