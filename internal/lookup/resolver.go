// Package lookup resolves address lookup tables referenced by an instruction
// plan into the addresses they index.
package lookup

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/clonekit/internal/accounts"
	"github.com/ggonzalez94/clonekit/internal/model"
)

const DefaultConcurrency = 4

type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// Result holds the tables that resolved, in request order, the union of their
// addresses, and the keys that could not be resolved.
type Result struct {
	Tables  []model.LookupTable
	Members *accounts.Set
	Failed  []solana.PublicKey
}

type Resolver struct {
	fetcher     AccountFetcher
	concurrency int
	log         zerolog.Logger
}

func NewResolver(fetcher AccountFetcher, concurrency int, log zerolog.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{
		fetcher:     fetcher,
		concurrency: concurrency,
		log:         log.With().Str("component", "lookup").Logger(),
	}
}

// Resolve fetches and decodes every key. A table that cannot be fetched or
// decoded is logged, listed in Failed and left out; the others still resolve.
func (r *Resolver) Resolve(ctx context.Context, keys []solana.PublicKey) (Result, error) {
	tables := make([]*model.LookupTable, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			table, err := r.fetch(gctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Warn().Err(err).Str("address", key.String()).Msg("lookup table unavailable, skipping")
				return nil
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Members: accounts.NewSet()}
	for i, table := range tables {
		if table == nil {
			res.Failed = append(res.Failed, keys[i])
			continue
		}
		res.Tables = append(res.Tables, *table)
		res.Members.AddAll(table.State.Addresses...)
	}
	return res, nil
}

func (r *Resolver) fetch(ctx context.Context, key solana.PublicKey) (*model.LookupTable, error) {
	info, err := r.fetcher.GetAccountInfo(ctx, key)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("account not found")
		}
		return nil, err
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("account not found")
	}
	if info.Value.Data == nil {
		return nil, fmt.Errorf("account has no data")
	}
	state, err := Decode(info.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}
	return &model.LookupTable{Key: key, State: state}, nil
}

// Members returns the union of the addresses indexed by tables.
func Members(tables []model.LookupTable) *accounts.Set {
	s := accounts.NewSet()
	for _, t := range tables {
		s.AddAll(t.State.Addresses...)
	}
	return s
}
