package providers

import (
	"context"

	solana "github.com/gagliardetto/solana-go"

	"github.com/ggonzalez94/clonekit/internal/model"
)

// Info describes a provider. Name feeds the envelope's provider status list.
type Info struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	BaseURL       string   `json:"base_url"`
	RequiresKey   bool     `json:"requires_key"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
	Capabilities  []string `json:"capabilities"`
}

type Provider interface {
	Info() Info
}

// QuoteRequest is an exact-input swap quote request.
type QuoteRequest struct {
	InputMint        solana.PublicKey
	OutputMint       solana.PublicKey
	AmountBaseUnits  string
	SlippageBps      int // negative selects the provider default; zero is a valid tolerance
	Dexes            []string
	ExcludeDexes     []string
	OnlyDirectRoutes bool
}

// Aggregator prices a swap and turns the price into executable instructions.
type Aggregator interface {
	Provider
	Quote(ctx context.Context, req QuoteRequest) (model.Quote, error)
	SwapInstructions(ctx context.Context, trader solana.PublicKey, quote model.Quote) (model.InstructionPlan, error)
}
