package codec

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"

	solana "github.com/gagliardetto/solana-go"
)

func TestRoundTripBigIntAndAddress(t *testing.T) {
	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	addr := solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	in := map[string]any{
		"amount":  huge,
		"program": addr,
		"route":   []any{map[string]any{"fee": big.NewInt(-5)}},
		"label":   "plain",
	}

	buf, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out any
	if err := Unmarshal(buf, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	m := out.(map[string]any)
	got, ok := m["amount"].(*big.Int)
	if !ok || got.Cmp(huge) != 0 {
		t.Fatalf("big integer not restored: %#v", m["amount"])
	}
	if m["program"] != addr.String() {
		t.Fatalf("address not encoded as base58: %#v", m["program"])
	}
	fee := m["route"].([]any)[0].(map[string]any)["fee"].(*big.Int)
	if fee.Int64() != -5 {
		t.Fatalf("negative big integer not restored: %s", fee)
	}
	if m["label"] != "plain" {
		t.Fatalf("plain string altered: %#v", m["label"])
	}
}

func TestUnmarshalKeepsOrdinaryNumbersExact(t *testing.T) {
	var out any
	if err := Unmarshal([]byte(`{"n":9007199254740993}`), &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	n := out.(map[string]any)["n"].(json.Number)
	if n.String() != "9007199254740993" {
		t.Fatalf("number altered: %s", n)
	}
}

func TestUint64Forms(t *testing.T) {
	buf, err := json.Marshal(Uint64(math.MaxUint64))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(buf) != `"18446744073709551615n"` {
		t.Fatalf("unexpected encoding: %s", buf)
	}

	cases := map[string]uint64{
		`"18446744073709551615n"`: math.MaxUint64,
		`"42"`:                    42,
		`42`:                      42,
	}
	for raw, want := range cases {
		var u Uint64
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			t.Fatalf("Unmarshal %s failed: %v", raw, err)
		}
		if uint64(u) != want {
			t.Fatalf("Unmarshal %s: got %d want %d", raw, u, want)
		}
	}

	var u Uint64
	if err := json.Unmarshal([]byte(`"-1n"`), &u); err == nil {
		t.Fatal("expected out of range error")
	}
	if err := json.Unmarshal([]byte(`"abc"`), &u); err == nil {
		t.Fatal("expected invalid value error")
	}
}

func TestParseBigIntRejectsUnmarked(t *testing.T) {
	if _, ok := ParseBigInt("12345"); ok {
		t.Fatal("unmarked digits must not parse as big integer")
	}
	if _, ok := ParseBigInt("n"); ok {
		t.Fatal("bare marker must not parse")
	}
}
