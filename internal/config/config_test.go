package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"", 0},
		{"1767225600", 1767225600},
		{"2026-01-01T00:00:00Z", 1767225600},
		{" 2026-01-01T08:00:00+08:00 ", 1767225600},
	}
	for _, tc := range tests {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTimestamp(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for free text")
	}
	tm, err := ParseTime("1767225600")
	if err != nil || !tm.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ParseTime = %s, %v", tm, err)
	}
}

func TestLoadMergesFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fundctl.yaml")
	content := "store: memory\njournal: /tmp/j.jsonl\ndecimals: 9\nrpc: http://localhost:8545\nbatch-size: 50\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("as", "", "")
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--as", "caller", "--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadRelay(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != "memory" || cfg.Journal != "/tmp/j.jsonl" || cfg.Decimals != 9 {
		t.Fatalf("file values not applied: %+v", cfg.Config)
	}
	if cfg.As != "caller" || cfg.LogLevel != "debug" {
		t.Fatalf("flag values not applied: %+v", cfg.Config)
	}
	if cfg.FundProgram != DefaultProgram || cfg.Schedule != "@every 30s" || !cfg.CheckpointEnabled {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RPCURL != "http://localhost:8545" || cfg.BatchSize != 50 {
		t.Fatalf("relay values not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fundctl.yaml")
	if err := os.WriteFile(path, []byte("store: redis\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, nil); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}
