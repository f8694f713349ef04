package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func tree() *cobra.Command {
	root := &cobra.Command{Use: "clonekit"}
	root.PersistentFlags().Bool("json", false, "json output")
	cache := &cobra.Command{Use: "cache", Short: "swap cache"}
	show := &cobra.Command{Use: "show", Short: "show cache", Aliases: []string{"get"}, Run: func(*cobra.Command, []string) {}}
	provision := &cobra.Command{Use: "provision", Short: "provision accounts", Run: func(*cobra.Command, []string) {}}
	provision.Flags().String("trader", "", "trader address")
	provision.Flags().Int("slippage-bps", 50, "slippage")
	_ = provision.MarkFlagRequired("trader")
	cache.AddCommand(show)
	root.AddCommand(cache, provision)
	return root
}

func TestBuildSchema(t *testing.T) {
	s, err := Build(tree(), "provision")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "clonekit provision" || !s.Runnable {
		t.Fatalf("unexpected command: %+v", s)
	}
	if len(s.Flags) != 2 || s.Flags[0].Name != "slippage-bps" || s.Flags[1].Name != "trader" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if !s.Flags[1].Required || s.Flags[0].Default != "50" {
		t.Fatalf("flag details lost: %+v", s.Flags)
	}
	if len(s.GlobalFlags) != 1 || s.GlobalFlags[0].Name != "json" {
		t.Fatalf("unexpected global flags: %+v", s.GlobalFlags)
	}
}

func TestBuildResolvesAliasesAndNesting(t *testing.T) {
	s, err := Build(tree(), "cache get")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "clonekit cache show" {
		t.Fatalf("unexpected path: %s", s.Path)
	}

	root, err := Build(tree(), "")
	if err != nil {
		t.Fatalf("Build root failed: %v", err)
	}
	if len(root.Subcommands) != 2 || root.Subcommands[0].Subcommands[0].Use != "show" {
		t.Fatalf("unexpected tree: %+v", root.Subcommands)
	}

	if _, err := Build(tree(), "cache missing"); err == nil {
		t.Fatal("expected unknown command error")
	}
}
