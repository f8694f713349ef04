package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/httpx"
	"github.com/ggonzalez94/clonekit/internal/id"
	"github.com/ggonzalez94/clonekit/internal/ledger"
	"github.com/ggonzalez94/clonekit/internal/lookup"
	"github.com/ggonzalez94/clonekit/internal/metrics"
	"github.com/ggonzalez94/clonekit/internal/model"
	"github.com/ggonzalez94/clonekit/internal/provision"
	"github.com/ggonzalez94/clonekit/internal/providers"
	"github.com/ggonzalez94/clonekit/internal/providers/jupiter"
	"github.com/ggonzalez94/clonekit/internal/registry"
	"github.com/ggonzalez94/clonekit/internal/swapcache"
	"github.com/ggonzalez94/clonekit/internal/throttle"
	"github.com/ggonzalez94/clonekit/internal/validatorcfg"
	"github.com/ggonzalez94/clonekit/internal/verify"
)

// defaultAmount is 1 SOL in lamports.
const defaultAmount = "1000000000"

type provisionArgs struct {
	trader           string
	inputMint        string
	outputMint       string
	amountBase       string
	amountDecimal    string
	slippageBps      int
	dexes            string
	excludeDexes     string
	onlyDirectRoutes bool
	extraAccounts    []string
	refresh          bool

	vaultProgram  string
	vaultOwner    string
	vaultMinOut   uint64
	vaultDeadline uint64
}

func (s *session) newProvisionCommand() *cobra.Command {
	var args provisionArgs
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Clone every account a swap touches into Anchor.toml",
		Long: `Quote a swap on Jupiter, collect every account its instructions and
lookup tables reference, keep the ones that exist on the reference network,
and rewrite the [test.validator] section of Anchor.toml to clone them.
A cached plan is reused until --refresh or "cache clear".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runProvision(cmd, args)
		},
	}
	cmd.Flags().StringVar(&args.trader, "trader", "", "Account that will sign the swap")
	cmd.Flags().StringVar(&args.inputMint, "input-mint", "SOL", "Input token symbol or mint")
	cmd.Flags().StringVar(&args.outputMint, "output-mint", "USDC", "Output token symbol or mint")
	cmd.Flags().StringVar(&args.amountBase, "amount", "", "Amount in base units (default 1 SOL)")
	cmd.Flags().StringVar(&args.amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().IntVar(&args.slippageBps, "slippage-bps", jupiter.DefaultSlippageBps, "Slippage tolerance in basis points")
	cmd.Flags().StringVar(&args.dexes, "dexes", "", "Only route through these DEXes (comma-separated)")
	cmd.Flags().StringVar(&args.excludeDexes, "exclude-dexes", "", "Never route through these DEXes (comma-separated)")
	cmd.Flags().BoolVar(&args.onlyDirectRoutes, "only-direct-routes", false, "Restrict quotes to single-hop routes")
	cmd.Flags().StringArrayVar(&args.extraAccounts, "extra-account", nil, "Additional account to clone (repeatable)")
	cmd.Flags().BoolVar(&args.refresh, "refresh", false, "Discard the swap cache and requote")
	cmd.Flags().StringVar(&args.vaultOwner, "vault-owner", "", "Derive the trader as the swap vault PDA of this owner")
	cmd.Flags().StringVar(&args.vaultProgram, "vault-program", registry.VaultProgram.String(), "Program owning the swap vault PDA")
	cmd.Flags().Uint64Var(&args.vaultMinOut, "vault-min-out", 0, "Minimum output amount seed of the vault PDA")
	cmd.Flags().Uint64Var(&args.vaultDeadline, "vault-deadline", 0, "Deadline seed of the vault PDA (unix seconds)")
	cmd.MarkFlagsMutuallyExclusive("trader", "vault-owner")
	cmd.MarkFlagsMutuallyExclusive("amount", "amount-decimal")
	return cmd
}

func (s *session) runProvision(cmd *cobra.Command, args provisionArgs) error {
	req, err := buildProvisionRequest(args)
	if err != nil {
		return err
	}

	var warnings []string
	ledgerStore, err := s.openLedger()
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.settings.LedgerPath).Msg("run ledger unavailable")
		warnings = append(warnings, fmt.Sprintf("run not recorded: %v", err))
	}

	fetcher := s.runner.fetcher
	if fetcher == nil {
		fetcher = rpc.New(s.settings.RPCURL)
	}
	fetcher = timeoutFetcher{inner: fetcher, timeout: s.settings.Timeout}

	client := jupiter.New(httpx.New(s.settings.Timeout, s.settings.Retries), s.settings.JupiterAPIKey, s.settings.JupiterBaseURL)
	agg := &timedAggregator{Aggregator: client}
	recorder := metrics.New()

	deps := provision.Deps{
		Aggregator: agg,
		Resolver:   lookup.NewResolver(fetcher, s.settings.LookupConcurrency, s.log),
		Verifier: verify.New(fetcher, throttle.Waves{
			Size:  s.settings.VerifyBatchSize,
			Delay: s.settings.VerifyDelay,
			OnWave: func(wave, units int) {
				s.log.Debug().Int("wave", wave).Int("accounts", units).Msg("verification wave")
			},
		}, s.log),
		Cache:      swapcache.New(s.settings.SwapCachePath),
		Config:     validatorcfg.New(s.settings.AnchorTomlPath, s.settings.ValidatorURL),
		ConfigPath: s.settings.AnchorTomlPath,
		Metrics:    recorder,
		Log:        s.log,
		Required:   registry.RequiredAddresses(),
		Labels:     registry.Labels(),
	}
	if ledgerStore != nil {
		deps.Ledger = ledgerStore
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	summary, runErr := provision.New(deps).Run(ctx, req)
	warnings = append(warnings, summary.Warnings...)

	if s.settings.MetricsFile != "" {
		if err := recorder.WriteTextfile(s.settings.MetricsFile); err != nil {
			s.log.Warn().Err(err).Str("path", s.settings.MetricsFile).Msg("could not write metrics")
			warnings = append(warnings, fmt.Sprintf("metrics not written: %v", err))
		}
	}
	calls := agg.statuses()
	if runErr != nil {
		s.partial = reply{warnings: warnings, providers: calls}
		return runErr
	}

	if ledgerStore != nil {
		if n, err := ledgerStore.Prune(s.settings.LedgerRetention); err != nil {
			s.log.Warn().Err(err).Msg("could not prune run ledger")
		} else if n > 0 {
			s.log.Debug().Int64("removed", n).Msg("pruned run ledger")
		}
	}

	cache := &model.CacheStatus{Status: "write"}
	if summary.Source == ledger.SourceCache {
		cache = &model.CacheStatus{Status: "hit", AgeMS: summary.CacheAgeMS}
	}
	return s.respond(cmd, reply{data: summary, warnings: warnings, cache: cache, providers: calls})
}

func buildProvisionRequest(args provisionArgs) (provision.Request, error) {
	input, err := id.ParseMint(args.inputMint)
	if err != nil {
		return provision.Request{}, err
	}
	output, err := id.ParseMint(args.outputMint)
	if err != nil {
		return provision.Request{}, err
	}
	if input.Mint.Equals(output.Mint) {
		return provision.Request{}, clierr.New(clierr.CodeUsage, "--input-mint and --output-mint must differ")
	}
	amountBase := args.amountBase
	if amountBase == "" && args.amountDecimal == "" {
		amountBase = defaultAmount
	}
	base, _, err := id.NormalizeAmount(amountBase, args.amountDecimal, input.Decimals)
	if err != nil {
		return provision.Request{}, err
	}
	if args.slippageBps < 0 || args.slippageBps > 10_000 {
		return provision.Request{}, clierr.New(clierr.CodeUsage, "--slippage-bps must be between 0 and 10000")
	}

	var trader solana.PublicKey
	switch {
	case args.vaultOwner != "":
		trader, err = deriveVaultTrader(args, input.Mint, output.Mint, base)
	case args.trader != "":
		trader, err = id.ParseAddress(args.trader, "trader")
	default:
		err = clierr.New(clierr.CodeUsage, "--trader or --vault-owner is required")
	}
	if err != nil {
		return provision.Request{}, err
	}

	extras, err := id.ParseAddresses(args.extraAccounts, "extra-account")
	if err != nil {
		return provision.Request{}, err
	}
	return provision.Request{
		Trader: trader,
		Quote: providers.QuoteRequest{
			InputMint:        input.Mint,
			OutputMint:       output.Mint,
			AmountBaseUnits:  base,
			SlippageBps:      args.slippageBps,
			Dexes:            csvList(args.dexes),
			ExcludeDexes:     csvList(args.excludeDexes),
			OnlyDirectRoutes: args.onlyDirectRoutes,
		},
		Extra:   extras,
		Refresh: args.refresh,
	}, nil
}

func deriveVaultTrader(args provisionArgs, input, output solana.PublicKey, amount string) (solana.PublicKey, error) {
	owner, err := id.ParseAddress(args.vaultOwner, "vault-owner")
	if err != nil {
		return solana.PublicKey{}, err
	}
	program, err := id.ParseAddress(args.vaultProgram, "vault-program")
	if err != nil {
		return solana.PublicKey{}, err
	}
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return solana.PublicKey{}, clierr.New(clierr.CodeUsage, "amount does not fit the vault seed (u64)")
	}
	vault, _, err := id.DeriveVault(program, id.VaultSeeds{
		InputMint:    input,
		OutputMint:   output,
		Owner:        owner,
		Amount:       n,
		MinAmountOut: args.vaultMinOut,
		Deadline:     args.vaultDeadline,
	})
	if err != nil {
		return solana.PublicKey{}, clierr.Wrap(clierr.CodeUsage, "derive vault", err)
	}
	return vault, nil
}

// timedAggregator records the latency and outcome of each aggregator call for
// the envelope's provider metadata.
type timedAggregator struct {
	providers.Aggregator

	mu   sync.Mutex
	last []model.ProviderStatus
}

func (t *timedAggregator) Quote(ctx context.Context, req providers.QuoteRequest) (model.Quote, error) {
	start := time.Now()
	quote, err := t.Aggregator.Quote(ctx, req)
	t.record(start, err)
	return quote, err
}

func (t *timedAggregator) SwapInstructions(ctx context.Context, trader solana.PublicKey, quote model.Quote) (model.InstructionPlan, error) {
	start := time.Now()
	plan, err := t.Aggregator.SwapInstructions(ctx, trader, quote)
	t.record(start, err)
	return plan, err
}

func (t *timedAggregator) record(start time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = append(t.last, model.ProviderStatus{
		Name:      t.Info().Name,
		Status:    callStatus(err),
		LatencyMS: time.Since(start).Milliseconds(),
	})
}

func (t *timedAggregator) statuses() []model.ProviderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.ProviderStatus(nil), t.last...)
}

// callStatus names the outcome of an aggregator call for the envelope.
func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case clierr.Is(err, clierr.CodeAuth):
		return "auth_error"
	case clierr.Is(err, clierr.CodeRateLimited):
		return "rate_limited"
	case clierr.Is(err, clierr.CodeUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func csvList(v string) []string {
	var items []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// timeoutFetcher bounds every account lookup by the request timeout.
type timeoutFetcher struct {
	inner   accountFetcher
	timeout time.Duration
}

func (f timeoutFetcher) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.inner.GetAccountInfo(ctx, account)
}
