// Package provision runs the full pipeline that turns a trader address into a
// validator configuration: quote, plan, collect, resolve, verify, cache and
// apply. A cached plan short-circuits everything up to the apply step.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/clonekit/internal/accounts"
	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/ledger"
	"github.com/ggonzalez94/clonekit/internal/lookup"
	"github.com/ggonzalez94/clonekit/internal/metrics"
	"github.com/ggonzalez94/clonekit/internal/model"
	"github.com/ggonzalez94/clonekit/internal/providers"
	"github.com/ggonzalez94/clonekit/internal/swapcache"
	"github.com/ggonzalez94/clonekit/internal/validatorcfg"
	"github.com/ggonzalez94/clonekit/internal/verify"
)

type TableResolver interface {
	Resolve(ctx context.Context, keys []solana.PublicKey) (lookup.Result, error)
}

type Verifier interface {
	Verify(ctx context.Context, candidates *accounts.Set) (verify.Report, error)
}

type Cache interface {
	Path() string
	Read() (swapcache.Entry, bool, error)
	Write(entry swapcache.Entry) error
	Clear() (bool, error)
}

type ConfigSync interface {
	Apply(addrs []solana.PublicKey, labels map[solana.PublicKey]string) (validatorcfg.Result, error)
}

type RunLedger interface {
	Save(run ledger.RunRecord) error
}

// Deps wires a Provisioner. Ledger and Metrics are optional.
type Deps struct {
	Aggregator providers.Aggregator
	Resolver   TableResolver
	Verifier   Verifier
	Cache      Cache
	Config     ConfigSync
	ConfigPath string
	Ledger     RunLedger
	Metrics    *metrics.Recorder
	Log        zerolog.Logger

	// Required accounts are cloned on every run after passing verification.
	Required []solana.PublicKey
	Labels   map[solana.PublicKey]string
}

type Request struct {
	Trader  solana.PublicKey
	Quote   providers.QuoteRequest
	Extra   []solana.PublicKey
	Refresh bool
}

type Provisioner struct {
	deps Deps
	log  zerolog.Logger
	now  func() time.Time
}

func New(deps Deps) *Provisioner {
	return &Provisioner{
		deps: deps,
		log:  deps.Log.With().Str("component", "provision").Logger(),
		now:  time.Now,
	}
}

// resolved is what both the cached and the fresh path hand to the apply step.
type resolved struct {
	source     string
	accounts   *accounts.Set
	tables     int
	failed     []solana.PublicKey
	candidates int
	report     verify.Report
	quote      model.Quote
	cacheAge   time.Duration
}

func (p *Provisioner) Run(ctx context.Context, req Request) (model.ProvisionSummary, error) {
	started := p.now()
	summary := model.ProvisionSummary{
		RunID:      ledger.NewRunID(),
		Trader:     req.Trader.String(),
		ConfigPath: p.deps.ConfigPath,
		CachePath:  p.deps.Cache.Path(),
	}

	res, err := p.resolve(ctx, req, &summary)
	if err == nil {
		err = p.apply(ctx, req, res, &summary)
	}
	summary.DurationMS = p.now().Sub(started).Milliseconds()
	p.record(summary, res, started, err)
	if err != nil {
		return summary, err
	}
	return summary, nil
}

func (p *Provisioner) resolve(ctx context.Context, req Request, summary *model.ProvisionSummary) (resolved, error) {
	if req.Refresh {
		removed, err := p.deps.Cache.Clear()
		if err != nil {
			return resolved{}, clierr.Wrap(clierr.CodeInternal, "clear swap cache", err)
		}
		if removed {
			p.log.Info().Str("path", p.deps.Cache.Path()).Msg("swap cache cleared")
		}
	}

	entry, ok, err := p.deps.Cache.Read()
	if err != nil {
		if !errors.Is(err, swapcache.ErrMalformed) {
			return resolved{}, clierr.Wrap(clierr.CodeInternal, "read swap cache", err)
		}
		p.log.Warn().Err(err).Str("path", p.deps.Cache.Path()).Msg("ignoring unusable swap cache")
		summary.Warnings = append(summary.Warnings, "swap cache was unusable and has been rebuilt")
		ok = false
	}
	if ok {
		p.log.Info().Str("path", p.deps.Cache.Path()).Int("accounts", entry.Accounts.Len()).Msg("using cached swap plan")
		return resolved{
			source:     ledger.SourceCache,
			accounts:   entry.Accounts,
			tables:     len(entry.LookupTables),
			candidates: entry.Accounts.Len(),
			quote:      entry.Quote,
			cacheAge:   entry.Age(p.now()),
		}, nil
	}
	return p.fresh(ctx, req, summary)
}

func (p *Provisioner) fresh(ctx context.Context, req Request, summary *model.ProvisionSummary) (resolved, error) {
	if p.deps.Aggregator == nil {
		return resolved{}, clierr.New(clierr.CodeInternal, "no aggregator configured")
	}
	quote, err := p.deps.Aggregator.Quote(ctx, req.Quote)
	if err != nil {
		return resolved{}, err
	}
	plan, err := p.deps.Aggregator.SwapInstructions(ctx, req.Trader, quote)
	if err != nil {
		return resolved{}, err
	}

	direct := accounts.Collect(plan)
	tables, err := p.deps.Resolver.Resolve(ctx, plan.AddressLookupTableAddresses)
	if err != nil {
		return resolved{}, clierr.Wrap(clierr.CodeUnavailable, "resolve lookup tables", err)
	}
	candidates := direct.Union(tables.Members)
	p.log.Info().
		Int("direct", direct.Len()).
		Int("lookup_tables", len(tables.Tables)).
		Int("candidates", candidates.Len()).
		Msg("collected swap accounts")

	report, err := p.deps.Verifier.Verify(ctx, candidates)
	if err != nil {
		return resolved{}, clierr.Wrap(clierr.CodeUnavailable, "verify accounts", err)
	}

	entry := swapcache.Entry{
		Quote:        quote,
		Plan:         plan,
		Accounts:     report.Verified,
		LookupTables: tables.Tables,
		Trader:       req.Trader.String(),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.deps.Cache.Write(entry); err != nil {
		p.log.Warn().Err(err).Str("path", p.deps.Cache.Path()).Msg("could not write swap cache")
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("swap cache not written: %v", err))
	}
	return resolved{
		source:     ledger.SourceAggregator,
		accounts:   report.Verified,
		tables:     len(tables.Tables),
		failed:     tables.Failed,
		candidates: candidates.Len(),
		report:     report,
		quote:      quote,
	}, nil
}

func (p *Provisioner) apply(ctx context.Context, req Request, res resolved, summary *model.ProvisionSummary) error {
	required := accounts.NewSet()
	for _, k := range append(append([]solana.PublicKey(nil), p.deps.Required...), req.Extra...) {
		if !res.accounts.Has(k) {
			required.Add(k)
		}
	}
	reqReport, err := p.deps.Verifier.Verify(ctx, required)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "verify required accounts", err)
	}
	final := res.accounts.Union(reqReport.Verified)

	cfg, err := p.deps.Config.Apply(final.Slice(), p.deps.Labels)
	if err != nil {
		return clierr.Wrap(clierr.CodeConfig, "update validator config", err)
	}
	p.log.Info().
		Str("path", p.deps.ConfigPath).
		Int("entries", cfg.Entries).
		Bool("changed", cfg.Changed).
		Msg("validator config synchronized")

	summary.Source = res.source
	summary.InputMint = res.quote.InputMint()
	summary.OutputMint = res.quote.OutputMint()
	summary.Amount = res.quote.InAmount()
	summary.Candidates = res.candidates + required.Len()
	summary.Verified = final.Len()
	summary.Rejected = append(append([]model.Rejection(nil), res.report.Rejected...), reqReport.Rejected...)
	summary.LookupTables = res.tables
	for _, k := range res.failed {
		summary.LookupTablesFailed = append(summary.LookupTablesFailed, k.String())
	}
	summary.CacheAgeMS = res.cacheAge.Milliseconds()
	summary.CloneEntries = cfg.Entries
	summary.ConfigChanged = cfg.Changed

	if m := p.deps.Metrics; m != nil {
		m.Verified(final.Len())
		for _, r := range summary.Rejected {
			m.Rejected(r.Reason)
		}
		m.LookupTables(res.tables, len(res.failed))
		m.Waves(res.report.Waves + reqReport.Waves)
		m.CloneEntries(cfg.Entries)
	}
	return nil
}

func (p *Provisioner) record(summary model.ProvisionSummary, res resolved, started time.Time, runErr error) {
	status := ledger.StatusSucceeded
	if runErr != nil {
		status = ledger.StatusFailed
	}
	source := res.source
	if source == "" {
		source = ledger.SourceAggregator
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.Run(source, string(status), time.Duration(summary.DurationMS)*time.Millisecond)
	}
	if p.deps.Ledger == nil {
		return
	}
	run := ledger.RunRecord{
		RunID:              summary.RunID,
		Trader:             summary.Trader,
		Source:             source,
		Status:             status,
		Candidates:         summary.Candidates,
		Verified:           summary.Verified,
		Rejected:           len(summary.Rejected),
		LookupTables:       summary.LookupTables,
		LookupTablesFailed: len(summary.LookupTablesFailed),
		StartedAt:          started.UTC().Format(time.RFC3339),
		FinishedAt:         p.now().UTC().Format(time.RFC3339),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	} else {
		s := summary
		run.Summary = &s
	}
	if err := p.deps.Ledger.Save(run); err != nil {
		p.log.Warn().Err(err).Str("run_id", run.RunID).Msg("could not record run")
	}
}
