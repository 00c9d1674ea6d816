package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundLedger/internal/config"
	"fundLedger/internal/model"
	"fundLedger/internal/plan"
	"fundLedger/internal/storage"
)

// session is what every ledger command starts from.
type session struct {
	ctx    context.Context
	cfg    config.Config
	logger *zap.Logger
	env    *env
	exec   *plan.Executor
	stop   func()
}

func (s *session) Close() {
	s.env.Close()
	_ = s.logger.Sync()
	s.stop()
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return openSessionWith(cfg)
}

func openSessionWith(cfg config.Config) (*session, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e, err := openEnv(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, err
	}
	return &session{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		env:    e,
		exec:   plan.NewExecutor(e.router, cfg.Decimals, logger),
		stop:   stop,
	}, nil
}

// caller resolves --as; it must be set for any state-changing command.
func (s *session) caller() (solana.PublicKey, error) {
	if s.cfg.As == "" {
		return solana.PublicKey{}, fmt.Errorf("caller identity is required (--as)")
	}
	key, err := solana.PublicKeyFromBase58(s.cfg.As)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--as: %w", err)
	}
	return key, nil
}

func (s *session) exec1(w io.Writer, op string, values map[string]string) error {
	caller, err := s.caller()
	if err != nil {
		return err
	}
	res, err := s.exec.Exec(s.ctx, op, caller, values)
	if err != nil {
		return err
	}
	printResult(w, res)
	return nil
}

func printResult(w io.Writer, res plan.Result) {
	prefix := res.Op
	if res.Step > 0 {
		prefix = fmt.Sprintf("%d. %s", res.Step, res.Op)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "%s: rejected: %v\n", prefix, res.Err)
		return
	}
	line := prefix + ": ok"
	if !res.Address.IsZero() {
		line += " " + res.Address.String()
	}
	for _, f := range res.Values {
		line += fmt.Sprintf(" %s=%s", f.Name, f.Value)
	}
	fmt.Fprintln(w, line)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the registry with --as as administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.exec1(cmd.OutOrStdout(), "initialize", nil)
		},
	}
}

func delegationOp(verb, kind string) (string, error) {
	switch kind {
	case "fund", "vault":
		return verb + "-" + kind, nil
	default:
		return "", fmt.Errorf("unknown delegation %q (want fund or vault)", kind)
	}
}

func newGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <fund|vault> <creator>",
		Short: "Grant creation rights",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := delegationOp("grant", args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.exec1(cmd.OutOrStdout(), op, map[string]string{"creator": args[1]})
		},
	}
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <fund|vault> <creator>",
		Short: "Revoke creation rights and refund the record's rent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := delegationOp("revoke", args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.exec1(cmd.OutOrStdout(), op, map[string]string{"creator": args[1]})
		},
	}
}

func newRunCmd() *cobra.Command {
	ops := plan.Ops()
	sort.Strings(ops)
	return &cobra.Command{
		Use:   "run <op> [key=value...]",
		Short: "Run a single ledger operation",
		Long:  "Run a single ledger operation. Operations: " + strings.Join(ops, ", "),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := plan.ParseArgs(args[1:])
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.exec1(cmd.OutOrStdout(), args[0], values)
		},
	}
}

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <plan.yaml>",
		Short: "Run every step of a plan, each as its own atomic unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var caller solana.PublicKey
			if s.cfg.As != "" {
				if caller, err = s.caller(); err != nil {
					return err
				}
			}
			results, runErr := s.exec.Run(s.ctx, p, caller, continueOnError)
			for _, res := range results {
				printResult(cmd.OutOrStdout(), res)
			}
			s.logger.Info("plan applied",
				zap.String("plan", args[0]),
				zap.Int("steps", len(p.Steps)),
				zap.Int("ran", len(results)),
				zap.Bool("ok", runErr == nil),
			)
			return runErr
		},
	}
	cmd.Flags().Bool("continue-on-error", false, "keep going after a rejected step")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <address>",
		Short: "Decode the record stored at an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var addr solana.PublicKey
			if args[0] == "registry" {
				addr = s.env.router.RegistryAddress()
			} else if addr, err = s.exec.Resolve(args[0]); err != nil {
				return err
			}
			desc, err := s.env.router.Describe(s.ctx, addr)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s)\n", desc.Address, desc.Type)
			for _, f := range desc.Fields {
				fmt.Fprintf(w, "  %-22s %s\n", f.Name, f.Value)
			}
			return nil
		},
	}
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List committed operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, _ := cmd.Flags().GetString("op")
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var entries []model.JournalEntry
			switch {
			case s.cfg.Journal == journalInDB && s.env.sqlite != nil:
				entries, err = s.env.sqlite.Entries(s.ctx, op)
			case s.cfg.Journal == journalInDB:
				return fmt.Errorf("listing the %s journal table is not supported", s.cfg.Store)
			case s.cfg.Journal == "":
				return fmt.Errorf("journal is disabled")
			default:
				entries, err = storage.ReadJournal(s.cfg.Journal)
			}
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, entry := range entries {
				if op != "" && entry.Op != op {
					continue
				}
				fmt.Fprintf(w, "%s %s %-20s %s\n", entry.CommittedAt, entry.ID, entry.Op, entry.Caller)
			}
			return nil
		},
	}
	cmd.Flags().String("op", "", "only list this operation")
	return cmd
}
