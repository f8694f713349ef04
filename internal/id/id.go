package id

import (
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/registry"
)

// Token is a resolved SPL mint. Decimals is -1 when the mint is not one of
// the well-known tokens.
type Token struct {
	Symbol   string
	Mint     solana.PublicKey
	Decimals int
}

var tokenBySymbol = map[string]Token{
	"SOL":  {Symbol: "SOL", Mint: registry.WSOLMint, Decimals: 9},
	"WSOL": {Symbol: "SOL", Mint: registry.WSOLMint, Decimals: 9},
	"USDC": {Symbol: "USDC", Mint: registry.USDCMint, Decimals: 6},
	"USDT": {Symbol: "USDT", Mint: registry.USDTMint, Decimals: 6},
}

// ParseMint resolves a token symbol or a base58 mint address.
func ParseMint(input string) (Token, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		return Token{}, clierr.New(clierr.CodeUsage, "mint is required")
	}
	if token, ok := tokenBySymbol[strings.ToUpper(value)]; ok {
		return token, nil
	}
	mint, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown token %q: use SOL, USDC, USDT or a mint address", input))
	}
	for _, token := range tokenBySymbol {
		if token.Mint == mint {
			return token, nil
		}
	}
	return Token{Symbol: mint.String(), Mint: mint, Decimals: -1}, nil
}

// ParseAddress parses a base58 account address named by flag.
func ParseAddress(input, flag string) (solana.PublicKey, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		return solana.PublicKey{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("--%s is required", flag))
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("--%s is not a valid address: %v", flag, err))
	}
	return key, nil
}

// ParseAddresses parses every value with ParseAddress.
func ParseAddresses(values []string, flag string) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		key, err := ParseAddress(v, flag)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, nil
}
