// Package validatorcfg rewrites the solana-test-validator section of an
// Anchor.toml so the local validator clones a given list of accounts.
package validatorcfg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/pelletier/go-toml/v2"
)

const DefaultURL = "https://api.mainnet-beta.solana.com"

// Settings are the scalar keys Anchor accepts under [test.validator].
type Settings struct {
	URL                *string `toml:"url"`
	BindAddress        *string `toml:"bind_address"`
	Ledger             *string `toml:"ledger"`
	RPCPort            *uint16 `toml:"rpc_port"`
	SlotsPerEpoch      *string `toml:"slots_per_epoch"`
	TicksPerSlot       *uint16 `toml:"ticks_per_slot"`
	WarpSlot           *string `toml:"warp_slot"`
	LimitLedgerSize    *string `toml:"limit_ledger_size"`
	GossipHost         *string `toml:"gossip_host"`
	GossipPort         *uint16 `toml:"gossip_port"`
	DynamicPortRange   *string `toml:"dynamic_port_range"`
	FaucetPort         *uint16 `toml:"faucet_port"`
	FaucetSOL          *string `toml:"faucet_sol"`
	GeyserPluginConfig *string `toml:"geyser_plugin_config"`
}

// validatorKeys is what a [test.validator] body may hold. Inline clone
// entries are accepted so they can be replaced by the generated list.
type validatorKeys struct {
	Settings
	Clone []map[string]any `toml:"clone"`
}

// Result describes an Apply call.
type Result struct {
	Changed bool
	Entries int
	URL     string
}

type Synchronizer struct {
	Path       string
	DefaultURL string
}

func New(path, defaultURL string) *Synchronizer {
	if strings.TrimSpace(defaultURL) == "" {
		defaultURL = DefaultURL
	}
	return &Synchronizer{Path: path, DefaultURL: defaultURL}
}

// Apply replaces every [test.validator] and [[test.validator.clone]] section
// with one generated block listing addrs in order. Everything else in the
// file is left untouched. The file is written only when its content changes.
func (s *Synchronizer) Apply(addrs []solana.PublicKey, labels map[solana.PublicKey]string) (Result, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	if err := validate(raw); err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", s.Path, err)
	}

	sections := split(string(raw))
	var (
		kept []section
		keys validatorKeys
		at   = -1
	)
	for _, sec := range sections {
		if !sec.generated() {
			kept = append(kept, sec)
			continue
		}
		if at < 0 {
			at = len(kept)
		}
		if sec.array {
			continue
		}
		dec := toml.NewDecoder(strings.NewReader(sec.body()))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&keys); err != nil {
			return Result{}, fmt.Errorf("parse [%s] in %s: %w", validatorTable, s.Path, describe(err))
		}
	}
	settings := keys.Settings
	if settings.URL == nil || strings.TrimSpace(*settings.URL) == "" {
		url := s.DefaultURL
		if url == "" {
			url = DefaultURL
		}
		settings.URL = &url
	}

	block := render(settings, addrs, labels)
	var out strings.Builder
	if at < 0 {
		for _, sec := range kept {
			out.WriteString(sec.text)
		}
		prefix := out.String()
		if prefix != "" && !strings.HasSuffix(prefix, "\n") {
			out.WriteString("\n")
			prefix += "\n"
		}
		if prefix != "" && !strings.HasSuffix(prefix, "\n\n") {
			out.WriteString("\n")
		}
		out.WriteString(block)
	} else {
		for i, sec := range kept {
			if i == at {
				out.WriteString(block)
				out.WriteString("\n")
			}
			out.WriteString(sec.text)
		}
		if at == len(kept) {
			out.WriteString(block)
		}
	}

	updated := []byte(out.String())
	if err := validate(updated); err != nil {
		return Result{}, fmt.Errorf("generated %s is not valid TOML: %w", s.Path, err)
	}
	res := Result{Entries: len(addrs), URL: *settings.URL}
	if bytes.Equal(raw, updated) {
		return res, nil
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.Path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(s.Path, updated, mode); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", s.Path, err)
	}
	res.Changed = true
	return res, nil
}

// Entries lists the clone addresses configured in the Anchor.toml at path.
func Entries(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc struct {
		Test struct {
			Validator struct {
				URL   string `toml:"url"`
				Clone []struct {
					Address string `toml:"address"`
				} `toml:"clone"`
			} `toml:"validator"`
		} `toml:"test"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, describe(err))
	}
	out := make([]string, 0, len(doc.Test.Validator.Clone))
	for _, c := range doc.Test.Validator.Clone {
		out = append(out, c.Address)
	}
	return out, nil
}

func validate(raw []byte) error {
	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return describe(err)
	}
	test, ok := doc["test"]
	if !ok {
		return nil
	}
	testTable, ok := test.(map[string]any)
	if !ok {
		return fmt.Errorf("key test must be a table")
	}
	if v, ok := testTable["validator"]; ok {
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("key test.validator must be a table")
		}
	}
	return nil
}

func describe(err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Errorf("line %d column %d: %s", row, col, decodeErr.Error())
	}
	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		keys := make([]string, 0, len(strictErr.Errors))
		for _, e := range strictErr.Errors {
			keys = append(keys, strings.Join(e.Key(), "."))
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return err
}

func render(settings Settings, addrs []solana.PublicKey, labels map[solana.PublicKey]string) string {
	var b strings.Builder
	b.WriteString("[" + validatorTable + "]\n")
	writeString(&b, "url", settings.URL)
	writeString(&b, "bind_address", settings.BindAddress)
	writeString(&b, "ledger", settings.Ledger)
	writeInt(&b, "rpc_port", settings.RPCPort)
	writeString(&b, "slots_per_epoch", settings.SlotsPerEpoch)
	writeInt(&b, "ticks_per_slot", settings.TicksPerSlot)
	writeString(&b, "warp_slot", settings.WarpSlot)
	writeString(&b, "limit_ledger_size", settings.LimitLedgerSize)
	writeString(&b, "gossip_host", settings.GossipHost)
	writeInt(&b, "gossip_port", settings.GossipPort)
	writeString(&b, "dynamic_port_range", settings.DynamicPortRange)
	writeInt(&b, "faucet_port", settings.FaucetPort)
	writeString(&b, "faucet_sol", settings.FaucetSOL)
	writeString(&b, "geyser_plugin_config", settings.GeyserPluginConfig)

	for _, addr := range addrs {
		b.WriteString("\n[[" + cloneArray + "]]\n")
		b.WriteString("address = " + quote(addr.String()))
		if label := strings.TrimSpace(labels[addr]); label != "" {
			b.WriteString("  # " + strings.ReplaceAll(label, "\n", " "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeString(b *strings.Builder, key string, v *string) {
	if v == nil {
		return
	}
	b.WriteString(key + " = " + quote(*v) + "\n")
}

func writeInt(b *strings.Builder, key string, v *uint16) {
	if v == nil {
		return
	}
	b.WriteString(key + " = " + strconv.FormatUint(uint64(*v), 10) + "\n")
}

// quote renders s as a TOML basic string.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
