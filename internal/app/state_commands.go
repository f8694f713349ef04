package app

import (
	"errors"
	"strconv"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/clonekit/internal/config"
	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/ledger"
	"github.com/ggonzalez94/clonekit/internal/model"
	"github.com/ggonzalez94/clonekit/internal/registry"
	"github.com/ggonzalez94/clonekit/internal/swapcache"
	"github.com/ggonzalez94/clonekit/internal/validatorcfg"
)

type cacheView struct {
	Path         string            `json:"path"`
	Trader       string            `json:"trader,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty"`
	AgeMS        int64             `json:"age_ms"`
	InputMint    string            `json:"input_mint"`
	OutputMint   string            `json:"output_mint"`
	InAmount     string            `json:"in_amount"`
	OutAmount    string            `json:"out_amount"`
	Route        []string          `json:"route,omitempty"`
	AccountCount int               `json:"account_count"`
	Accounts     []string          `json:"accounts"`
	LookupTables []lookupTableView `json:"lookup_tables,omitempty"`
}

type lookupTableView struct {
	Address   string `json:"address"`
	Addresses int    `json:"addresses"`
	Active    bool   `json:"active"`
}

type configView struct {
	AnchorToml string             `json:"anchor_toml"`
	Entries    []model.CloneEntry `json:"entries"`
	Settings   config.Settings    `json:"settings"`
}

func (s *session) newCacheCommand() *cobra.Command {
	root := &cobra.Command{Use: "cache", Short: "Swap cache commands"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cached quote and account list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := swapcache.New(s.settings.SwapCachePath)
			entry, err := store.Require()
			if err != nil {
				return err
			}
			age := entry.Age(s.runner.now())
			view := cacheView{
				Path:         store.Path(),
				Trader:       entry.Trader,
				AgeMS:        age.Milliseconds(),
				InputMint:    entry.Quote.InputMint(),
				OutputMint:   entry.Quote.OutputMint(),
				InAmount:     entry.Quote.InAmount(),
				OutAmount:    entry.Quote.OutAmount(),
				Route:        entry.Quote.RouteLabels(),
				AccountCount: entry.Accounts.Len(),
				Accounts:     entry.Accounts.Strings(),
			}
			if !entry.CreatedAt.IsZero() {
				view.CreatedAt = entry.CreatedAt.UTC().Format(time.RFC3339)
			}
			for _, table := range entry.LookupTables {
				view.LookupTables = append(view.LookupTables, lookupTableView{
					Address:   table.Key.String(),
					Addresses: len(table.State.Addresses),
					Active:    table.State.IsActive(),
				})
			}
			return s.respond(cmd, reply{
				data:  view,
				cache: &model.CacheStatus{Status: "hit", AgeMS: age.Milliseconds()},
			})
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the swap cache so the next provision requotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := swapcache.New(s.settings.SwapCachePath)
			removed, err := store.Clear()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "clear swap cache", err)
			}
			data := map[string]any{"path": store.Path(), "removed": removed}
			return s.respond(cmd, reply{data: data, cache: &model.CacheStatus{Status: "cleared"}})
		},
	}
	root.AddCommand(show, clearCmd)
	return root
}

func (s *session) newConfigCommand() *cobra.Command {
	root := &cobra.Command{Use: "config", Short: "Validator configuration commands"}
	show := &cobra.Command{
		Use:   "show",
		Short: "List the clone entries in Anchor.toml and the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs, err := validatorcfg.Entries(s.settings.AnchorTomlPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeConfig, "read validator config", err)
			}
			view := configView{
				AnchorToml: s.settings.AnchorTomlPath,
				Entries:    make([]model.CloneEntry, 0, len(addrs)),
				Settings:   s.settings,
			}
			for _, addr := range addrs {
				entry := model.CloneEntry{Address: addr}
				if key, err := solana.PublicKeyFromBase58(addr); err == nil {
					entry.Label, _ = registry.Label(key)
				}
				view.Entries = append(view.Entries, entry)
			}
			return s.respond(cmd, reply{data: view})
		},
	}
	root.AddCommand(show)
	return root
}

func (s *session) newRunsCommand() *cobra.Command {
	root := &cobra.Command{Use: "runs", Short: "Provisioning run history"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent provisioning runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := s.requireLedger()
			if err != nil {
				return err
			}
			runs, err := store.List(limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list runs", err)
			}
			return s.respond(cmd, reply{data: runs})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one provisioning run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.requireLedger()
			if err != nil {
				return err
			}
			run, err := store.Get(args[0])
			if err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					return clierr.Wrap(clierr.CodeUsage, "unknown run id "+strconv.Quote(args[0]), err)
				}
				return clierr.Wrap(clierr.CodeInternal, "read run", err)
			}
			return s.respond(cmd, reply{data: run})
		},
	}
	root.AddCommand(list, show)
	return root
}

func (s *session) requireLedger() (*ledger.Store, error) {
	store, err := s.openLedger()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open run ledger", err)
	}
	if store == nil {
		return nil, clierr.New(clierr.CodeUnsupported, "run ledger is disabled (--no-ledger or ledger.enabled=false)")
	}
	return store, nil
}
