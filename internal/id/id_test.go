package id

import (
	"testing"

	solana "github.com/gagliardetto/solana-go"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/registry"
)

func TestParseMintSymbolAndAddress(t *testing.T) {
	token, err := ParseMint("sol")
	if err != nil {
		t.Fatalf("ParseMint(sol) failed: %v", err)
	}
	if token.Mint != registry.WSOLMint || token.Decimals != 9 {
		t.Fatalf("unexpected token: %+v", token)
	}

	token, err = ParseMint("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	if err != nil {
		t.Fatalf("ParseMint(address) failed: %v", err)
	}
	if token.Symbol != "USDC" || token.Decimals != 6 {
		t.Fatalf("expected USDC, got %+v", token)
	}

	token, err = ParseMint("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	if err != nil {
		t.Fatalf("ParseMint(unknown mint) failed: %v", err)
	}
	if token.Decimals != -1 {
		t.Fatalf("expected unknown decimals, got %d", token.Decimals)
	}
}

func TestParseMintRejectsGarbage(t *testing.T) {
	_, err := ParseMint("DOGE!")
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestParseAddresses(t *testing.T) {
	keys, err := ParseAddresses([]string{"So11111111111111111111111111111111111111112", " "}, "extra-account")
	if err != nil {
		t.Fatalf("ParseAddresses failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected blank values to be skipped, got %d", len(keys))
	}
	if _, err := ParseAddress("", "trader"); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestDeriveVaultIsDeterministic(t *testing.T) {
	seeds := VaultSeeds{
		InputMint:    registry.WSOLMint,
		OutputMint:   registry.USDCMint,
		Owner:        solana.MustPublicKeyFromBase58("D8cy77BBepLMngZx6ZukaTff5hCt1HrWyKk3Hnd9oitf"),
		Amount:       1_000_000_000,
		MinAmountOut: 150_000_000,
		Deadline:     1_790_000_000,
	}
	first, bump, err := DeriveVault(registry.VaultProgram, seeds)
	if err != nil {
		t.Fatalf("DeriveVault failed: %v", err)
	}
	second, bump2, err := DeriveVault(registry.VaultProgram, seeds)
	if err != nil {
		t.Fatalf("DeriveVault failed: %v", err)
	}
	if first != second || bump != bump2 {
		t.Fatal("expected deterministic derivation")
	}

	seeds.Deadline++
	other, _, err := DeriveVault(registry.VaultProgram, seeds)
	if err != nil {
		t.Fatalf("DeriveVault failed: %v", err)
	}
	if other == first {
		t.Fatal("expected different seeds to derive a different vault")
	}
}
