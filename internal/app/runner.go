package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/clonekit/internal/config"
	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/ledger"
	"github.com/ggonzalez94/clonekit/internal/logging"
	"github.com/ggonzalez94/clonekit/internal/policy"
	"github.com/ggonzalez94/clonekit/internal/schema"
	"github.com/ggonzalez94/clonekit/internal/version"
)

// accountFetcher is the slice of the RPC client the pipeline needs.
type accountFetcher interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	// logOut receives structured logs; nil means the process stderr.
	logOut io.Writer
	// fetcher replaces the RPC client built from the configured endpoint.
	fetcher accountFetcher
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

// session is the state of one Run: the parsed flags, the settings they
// resolve to and whatever the command opened along the way.
type session struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	log      zerolog.Logger
	ledger   *ledger.Store
	root     *cobra.Command
	command  string
	// partial is reported with the error envelope when a command fails.
	partial reply
}

func (r *Runner) Run(args []string) int {
	s := &session{runner: r, log: zerolog.Nop()}
	s.root = s.newRootCommand()
	s.root.SetArgs(args)
	s.root.SetOut(r.stdout)
	s.root.SetErr(r.stderr)
	s.root.SilenceUsage = true
	s.root.SilenceErrors = true

	err := asCLIError(s.root.Execute())
	if s.ledger != nil {
		_ = s.ledger.Close()
	}
	if err == nil {
		return 0
	}
	s.fail(err)
	return clierr.ExitCode(err)
}

func (s *session) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Clone the mainnet accounts a Jupiter swap touches into a local Anchor test validator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.log = s.newLogger()

			s.command = commandPath(cmd)
			return policy.CheckCommandAllowed(settings.EnableCommands, s.command)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Per-request timeout for Jupiter and RPC calls")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per Jupiter request")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to .env file (default ./.env)")
	cmd.PersistentFlags().StringVar(&s.flags.AnchorToml, "anchor-toml", "", "Path to Anchor.toml")
	cmd.PersistentFlags().StringVar(&s.flags.CachePath, "cache-path", "", "Path to the swap cache file")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Reference RPC endpoint or cluster name (mainnet-beta, devnet, testnet)")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.flags.MetricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
	cmd.PersistentFlags().BoolVar(&s.flags.NoLedger, "no-ledger", false, "Do not record runs in the local ledger")

	cmd.AddCommand(s.newProvisionCommand())
	cmd.AddCommand(s.newCacheCommand())
	cmd.AddCommand(s.newConfigCommand())
	cmd.AddCommand(s.newRunsCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *session) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.respond(cmd, reply{data: data})
		},
	}
}

func (s *session) newLogger() zerolog.Logger {
	if s.runner.logOut != nil {
		return logging.New(s.runner.logOut, s.settings.LogLevel)
	}
	return logging.NewLogger(s.settings.LogLevel)
}

// openLedger opens the run ledger once per process. It returns nil when the
// ledger is disabled.
func (s *session) openLedger() (*ledger.Store, error) {
	if !s.settings.LedgerEnabled {
		return nil, nil
	}
	if s.ledger != nil {
		return s.ledger, nil
	}
	store, err := ledger.Open(s.settings.LedgerPath, s.settings.LedgerLockPath)
	if err != nil {
		return nil, err
	}
	s.ledger = store
	return store, nil
}
