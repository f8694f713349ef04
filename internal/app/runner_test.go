package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/clonekit/internal/lookup"
	"github.com/ggonzalez94/clonekit/internal/registry"
	"github.com/ggonzalez94/clonekit/internal/validatorcfg"
)

func TestCommandPath(t *testing.T) {
	root := &cobra.Command{Use: "clonekit"}
	cache := &cobra.Command{Use: "cache"}
	show := &cobra.Command{Use: "show"}
	cache.AddCommand(show)
	root.AddCommand(cache)
	if got := commandPath(show); got != "cache show" {
		t.Fatalf("unexpected command path: %q", got)
	}
	if got := commandPath(root); got != "" {
		t.Fatalf("expected empty root path, got %q", got)
	}
}

func TestCSVList(t *testing.T) {
	items := csvList("Raydium, Orca ,")
	if len(items) != 2 || items[0] != "Raydium" || items[1] != "Orca" {
		t.Fatalf("unexpected split: %#v", items)
	}
	if items := csvList(" "); items != nil {
		t.Fatalf("expected nil, got %#v", items)
	}
}

func testKey(n byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = n
	k[31] = 0x42
	return k
}

var (
	swapAcct  = testKey(1)
	setupAcct = testKey(2)
	tableAcct = testKey(3)
	member    = testKey(4)
	traderKey = testKey(5)
)

type memFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *memFetcher) GetAccountInfo(_ context.Context, k solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	raw := []byte{1}
	if k == tableAcct {
		raw = make([]byte, lookup.HeaderSize)
		binary.LittleEndian.PutUint32(raw[0:4], 1)
		binary.LittleEndian.PutUint64(raw[4:12], math.MaxUint64)
		raw = append(raw, member[:]...)
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Owner: solana.SystemProgramID, Data: rpc.DataBytesOrJSONFromBytes(raw)}}, nil
}

type testEnv struct {
	dir     string
	anchor  string
	fetcher *memFetcher
	quotes  int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{dir: t.TempDir(), fetcher: &memFetcher{}}
	env.anchor = filepath.Join(env.dir, "Anchor.toml")
	if err := os.WriteFile(env.anchor, []byte("[provider]\ncluster = \"localnet\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		env.quotes++
		q := r.URL.Query()
		_, _ = fmt.Fprintf(w, `{"inputMint":%q,"outputMint":%q,"inAmount":%q,"outAmount":"152345678","routePlan":[{"swapInfo":{"label":"Orca"}}]}`,
			q.Get("inputMint"), q.Get("outputMint"), q.Get("amount"))
	})
	mux.HandleFunc("/swap-instructions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{
			"setupInstructions":[{"programId":%q,"accounts":[{"pubkey":%q,"isSigner":false,"isWritable":true}],"data":""}],
			"swapInstruction":{"programId":%q,"accounts":[{"pubkey":%q,"isSigner":false,"isWritable":true}],"data":""},
			"addressLookupTableAddresses":[%q]
		}`, solana.SystemProgramID, setupAcct, registry.JupiterProgram, swapAcct, tableAcct)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Chdir(env.dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(env.dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(env.dir, "cache"))
	t.Setenv("CLONEKIT_JUPITER_BASE_URL", srv.URL)
	t.Setenv("CLONEKIT_ANCHOR_TOML", env.anchor)
	t.Setenv("CLONEKIT_VERIFY_DELAY", "1ns")
	return env
}

func (e *testEnv) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	r.logOut = io.Discard
	r.fetcher = e.fetcher
	code := r.Run(args)
	return code, stdout.String(), stderr.String()
}

func TestRunnerProvisionEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := env.run("provision", "--trader", traderKey.String())
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var out struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Meta    struct {
			Cache     map[string]any   `json:"cache"`
			Providers []map[string]any `json:"providers"`
		} `json:"meta"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, stdout)
	}
	if !out.Success || out.Data["source"] != "aggregator" || out.Meta.Cache["status"] != "write" {
		t.Fatalf("unexpected envelope: %s", stdout)
	}
	if len(out.Meta.Providers) != 2 || out.Meta.Providers[0]["name"] != "jupiter" {
		t.Fatalf("expected quote and swap-instructions provider status: %+v", out.Meta.Providers)
	}

	entries, err := validatorcfg.Entries(env.anchor)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	want := []solana.PublicKey{swapAcct, setupAcct, tableAcct, member}
	want = append(want, registry.RequiredAddresses()...)
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), entries)
	}
	for i := range want {
		if entries[i] != want[i].String() {
			t.Fatalf("entry %d: got %s want %s", i, entries[i], want[i])
		}
	}
	raw, _ := os.ReadFile(env.anchor)
	if !strings.Contains(string(raw), "# Jupiter Aggregator") || !strings.HasPrefix(string(raw), "[provider]\n") {
		t.Fatalf("unexpected Anchor.toml:\n%s", raw)
	}

	code, stdout, stderr = env.run("provision", "--trader", traderKey.String(), "--select", "source,clone_entries", "--results-only")
	if code != 0 {
		t.Fatalf("cached run failed: %d stderr=%s", code, stderr)
	}
	var cached map[string]any
	if err := json.Unmarshal([]byte(stdout), &cached); err != nil {
		t.Fatalf("failed to parse cached output: %v", err)
	}
	if cached["source"] != "cache" || cached["clone_entries"].(float64) != float64(len(want)) || env.quotes != 1 {
		t.Fatalf("expected cache reuse, got %v (quotes=%d)", cached, env.quotes)
	}

	code, stdout, stderr = env.run("runs", "list", "--results-only")
	if code != 0 {
		t.Fatalf("runs list failed: %d stderr=%s", code, stderr)
	}
	var runs []map[string]any
	if err := json.Unmarshal([]byte(stdout), &runs); err != nil {
		t.Fatalf("failed to parse runs: %v output=%s", err, stdout)
	}
	if len(runs) != 2 || runs[0]["status"] != "succeeded" {
		t.Fatalf("expected two recorded runs, got %s", stdout)
	}

	code, stdout, stderr = env.run("runs", "show", runs[0]["run_id"].(string), "--select", "source", "--results-only")
	if code != 0 || !strings.Contains(stdout, `"source"`) {
		t.Fatalf("runs show failed: %d stdout=%s stderr=%s", code, stdout, stderr)
	}
}

func TestRunnerCacheShowAndClear(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("cache", "show")
	if code != 14 {
		t.Fatalf("expected cache missing exit 14, got %d stderr=%s", code, stderr)
	}

	if code, _, stderr := env.run("provision", "--trader", traderKey.String(), "--no-ledger"); code != 0 {
		t.Fatalf("provision failed: %d stderr=%s", code, stderr)
	}
	code, stdout, _ := env.run("cache", "show", "--results-only")
	if code != 0 {
		t.Fatalf("cache show failed: %d", code)
	}
	var view map[string]any
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("failed to parse cache view: %v", err)
	}
	if view["account_count"].(float64) != 4 || view["trader"] != traderKey.String() {
		t.Fatalf("unexpected cache view: %s", stdout)
	}

	code, stdout, _ = env.run("cache", "clear", "--results-only")
	if code != 0 || !strings.Contains(stdout, `"removed": true`) {
		t.Fatalf("cache clear failed: %d %s", code, stdout)
	}
	if code, _, _ := env.run("cache", "show"); code != 14 {
		t.Fatalf("expected cache to be gone, got exit %d", code)
	}
}

func TestRunnerConfigShow(t *testing.T) {
	env := newTestEnv(t)
	if code, _, stderr := env.run("provision", "--trader", traderKey.String(), "--no-ledger"); code != 0 {
		t.Fatalf("provision failed: %d stderr=%s", code, stderr)
	}
	code, stdout, stderr := env.run("config", "show", "--select", "entries", "--results-only")
	if code != 0 {
		t.Fatalf("config show failed: %d stderr=%s", code, stderr)
	}
	var view struct {
		Entries []struct {
			Address string `json:"address"`
			Label   string `json:"label"`
		} `json:"entries"`
	}
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("failed to parse config view: %v", err)
	}
	if len(view.Entries) != 4+len(registry.RequiredAddresses()) {
		t.Fatalf("unexpected entries: %+v", view.Entries)
	}
	if view.Entries[4].Label != "Jupiter Aggregator" {
		t.Fatalf("expected registry label, got %+v", view.Entries[4])
	}
}

func TestRunnerEnvelopeMetaFollowsCommand(t *testing.T) {
	env := newTestEnv(t)
	if code, _, stderr := env.run("provision", "--trader", traderKey.String(), "--no-ledger"); code != 0 {
		t.Fatalf("provision failed: %d stderr=%s", code, stderr)
	}
	type meta struct {
		Meta map[string]any `json:"meta"`
	}
	cases := []struct {
		args  []string
		cache string
	}{
		{args: []string{"config", "show"}},
		{args: []string{"schema"}},
		{args: []string{"cache", "show"}, cache: "hit"},
		{args: []string{"cache", "clear"}, cache: "cleared"},
	}
	for _, tc := range cases {
		code, stdout, stderr := env.run(tc.args...)
		if code != 0 {
			t.Fatalf("%v failed: %d stderr=%s", tc.args, code, stderr)
		}
		var out meta
		if err := json.Unmarshal([]byte(stdout), &out); err != nil {
			t.Fatalf("%v: failed to parse envelope: %v", tc.args, err)
		}
		if _, ok := out.Meta["providers"]; ok {
			t.Fatalf("%v: unexpected provider metadata: %v", tc.args, out.Meta)
		}
		if out.Meta["command"] != strings.Join(tc.args, " ") {
			t.Fatalf("%v: unexpected command %v", tc.args, out.Meta["command"])
		}
		cache, ok := out.Meta["cache"].(map[string]any)
		if tc.cache == "" {
			if ok {
				t.Fatalf("%v: unexpected cache metadata: %v", tc.args, cache)
			}
			continue
		}
		if !ok || cache["status"] != tc.cache {
			t.Fatalf("%v: expected cache status %s, got %v", tc.args, tc.cache, out.Meta["cache"])
		}
	}
}

func TestRunnerCobraArgumentErrorsAreUsage(t *testing.T) {
	env := newTestEnv(t)
	for _, args := range [][]string{{"nope"}, {"runs", "show"}, {"cache", "show", "extra"}} {
		code, _, stderr := env.run(args...)
		if code != 2 {
			t.Fatalf("%v: expected usage exit 2, got %d stderr=%s", args, code, stderr)
		}
		var out struct {
			Error struct {
				Type string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(stderr), &out); err != nil || out.Error.Type != "usage_error" {
			t.Fatalf("%v: expected usage error envelope, got %s", args, stderr)
		}
	}
}

func TestRunnerProvisionUsageErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := [][]string{
		{"provision"},
		{"provision", "--trader", "not-an-address"},
		{"provision", "--trader", traderKey.String(), "--vault-owner", traderKey.String()},
		{"provision", "--trader", traderKey.String(), "--input-mint", "USDC"},
		{"provision", "--trader", traderKey.String(), "--amount", "1", "--amount-decimal", "1"},
	}
	for _, args := range cases {
		code, _, stderr := env.run(args...)
		if code != 2 {
			t.Fatalf("%v: expected usage exit 2, got %d stderr=%s", args, code, stderr)
		}
	}
	if env.quotes != 0 || env.fetcher.calls != 0 {
		t.Fatal("usage errors must not reach the network")
	}
}

func TestRunnerProvisionVaultTrader(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := env.run("provision", "--vault-owner", traderKey.String(), "--vault-deadline", "1779964906", "--no-ledger", "--select", "trader", "--results-only")
	if code != 0 {
		t.Fatalf("provision failed: %d stderr=%s", code, stderr)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if out["trader"] == traderKey.String() || out["trader"] == "" {
		t.Fatalf("expected derived vault trader, got %v", out["trader"])
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("cache", "show", "--enable-commands", "provision", "--results-only")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stderr), &out); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr)
	}
	if out["success"] != false {
		t.Fatalf("expected success=false, got %v", out["success"])
	}
	errBody := out["error"].(map[string]any)
	if errBody["type"] != "command_blocked" {
		t.Fatalf("unexpected error body: %v", errBody)
	}
}

func TestRunnerRunsDisabledLedger(t *testing.T) {
	env := newTestEnv(t)
	if code, _, _ := env.run("runs", "list", "--no-ledger"); code != 13 {
		t.Fatalf("expected unsupported exit 13, got %d", code)
	}
	if code, _, _ := env.run("runs", "show", "run_missing"); code != 2 {
		t.Fatalf("expected usage exit 2 for unknown run, got %d", code)
	}
}

func TestRunnerSchemaAndVersion(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := env.run("schema", "provision", "--results-only")
	if code != 0 {
		t.Fatalf("schema failed: %d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, `"name": "trader"`) || !strings.Contains(stdout, `"name": "refresh"`) {
		t.Fatalf("schema missing provision flags: %s", stdout)
	}
	code, stdout, _ = env.run("version")
	if code != 0 || strings.TrimSpace(stdout) == "" {
		t.Fatalf("version failed: %d %q", code, stdout)
	}
}
