// Package verify confirms candidate accounts exist on the reference network.
package verify

import (
	"context"
	"errors"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/clonekit/internal/accounts"
	"github.com/ggonzalez94/clonekit/internal/model"
	"github.com/ggonzalez94/clonekit/internal/throttle"
)

// AccountFetcher is the subset of *rpc.Client used for existence checks.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

const (
	ReasonNotFound = "not_found"
	ReasonRPCError = "rpc_error"
)

// Report is the outcome of a verification pass. Verified keeps candidate order.
type Report struct {
	Verified *accounts.Set
	Rejected []model.Rejection
	Waves    int
}

type Verifier struct {
	fetcher AccountFetcher
	waves   throttle.Waves
	log     zerolog.Logger
}

func New(fetcher AccountFetcher, waves throttle.Waves, log zerolog.Logger) *Verifier {
	return &Verifier{fetcher: fetcher, waves: waves, log: log.With().Str("component", "verify").Logger()}
}

// Verify checks every candidate once. Lookup failures are logged and the
// address is rejected; they never stop the pass. Only context cancellation
// returns an error.
func (v *Verifier) Verify(ctx context.Context, candidates *accounts.Set) (Report, error) {
	keys := candidates.Slice()
	reasons := make([]string, len(keys))

	err := v.waves.Run(ctx, len(keys), func(ctx context.Context, i int) error {
		reasons[i] = v.check(ctx, keys[i])
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	report := Report{Verified: accounts.NewSet(), Waves: v.waves.Count(len(keys))}
	for i, key := range keys {
		if reasons[i] == "" {
			report.Verified.Add(key)
			continue
		}
		report.Rejected = append(report.Rejected, model.Rejection{Address: key.String(), Reason: reasons[i]})
	}
	v.log.Info().
		Int("candidates", len(keys)).
		Int("verified", report.Verified.Len()).
		Int("rejected", len(report.Rejected)).
		Msg("verification finished")
	return report, nil
}

func (v *Verifier) check(ctx context.Context, key solana.PublicKey) string {
	res, err := v.fetcher.GetAccountInfo(ctx, key)
	switch {
	case errors.Is(err, rpc.ErrNotFound):
		v.log.Warn().Str("address", key.String()).Msg("account not found, skipping")
		return ReasonNotFound
	case err != nil:
		v.log.Warn().Err(err).Str("address", key.String()).Msg("account lookup failed, skipping")
		return ReasonRPCError
	case res == nil || res.Value == nil:
		v.log.Warn().Str("address", key.String()).Msg("account not found, skipping")
		return ReasonNotFound
	}
	return ""
}
