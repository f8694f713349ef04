package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	"github.com/ggonzalez94/clonekit/internal/codec"
)

// Quote is the aggregator's pricing document. It is kept untyped so that it
// can be handed back to the aggregator verbatim when building a plan.
type Quote map[string]any

func (q Quote) str(key string) string {
	switch v := q[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func (q Quote) InputMint() string  { return q.str("inputMint") }
func (q Quote) OutputMint() string { return q.str("outputMint") }
func (q Quote) InAmount() string   { return q.str("inAmount") }
func (q Quote) OutAmount() string  { return q.str("outAmount") }

// RouteLabels lists the AMM labels of each route hop, collapsing repeats.
func (q Quote) RouteLabels() []string {
	plan, _ := q["routePlan"].([]any)
	labels := make([]string, 0, len(plan))
	for _, hop := range plan {
		m, _ := hop.(map[string]any)
		info, _ := m["swapInfo"].(map[string]any)
		label, _ := info["label"].(string)
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if len(labels) == 0 || labels[len(labels)-1] != label {
			labels = append(labels, label)
		}
	}
	return labels
}

type AccountMeta struct {
	Pubkey     solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// Instruction is an aggregator instruction; Data is the base64 payload.
type Instruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []AccountMeta    `json:"accounts"`
	Data      []byte           `json:"data"`
}

// InstructionPlan is the aggregator's executable output. Top-level fields the
// schema does not name are preserved in Extra and written back on marshal.
type InstructionPlan struct {
	TokenLedgerInstruction      *Instruction
	ComputeBudgetInstructions   []Instruction
	SetupInstructions           []Instruction
	SwapInstruction             Instruction
	CleanupInstruction          *Instruction
	OtherInstructions           []Instruction
	AddressLookupTableAddresses []solana.PublicKey
	Extra                       map[string]json.RawMessage
}

const (
	planTokenLedger   = "tokenLedgerInstruction"
	planComputeBudget = "computeBudgetInstructions"
	planSetup         = "setupInstructions"
	planSwap          = "swapInstruction"
	planCleanup       = "cleanupInstruction"
	planOther         = "otherInstructions"
	planLookupTables  = "addressLookupTableAddresses"
)

func (p *InstructionPlan) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode instruction plan: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("decode instruction plan: not an object")
	}
	raw, ok := fields[planSwap]
	if !ok || isNull(raw) {
		return fmt.Errorf("decode instruction plan: missing %s", planSwap)
	}

	var plan InstructionPlan
	targets := map[string]any{
		planTokenLedger:   &plan.TokenLedgerInstruction,
		planComputeBudget: &plan.ComputeBudgetInstructions,
		planSetup:         &plan.SetupInstructions,
		planSwap:          &plan.SwapInstruction,
		planCleanup:       &plan.CleanupInstruction,
		planOther:         &plan.OtherInstructions,
		planLookupTables:  &plan.AddressLookupTableAddresses,
	}
	for key, target := range targets {
		raw, ok := fields[key]
		delete(fields, key)
		if !ok || isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("decode instruction plan %s: %w", key, err)
		}
	}
	if len(fields) > 0 {
		plan.Extra = fields
	}
	*p = plan
	return nil
}

func (p InstructionPlan) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+7)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[planSwap] = p.SwapInstruction
	if p.TokenLedgerInstruction != nil {
		out[planTokenLedger] = p.TokenLedgerInstruction
	}
	if len(p.ComputeBudgetInstructions) > 0 {
		out[planComputeBudget] = p.ComputeBudgetInstructions
	}
	if len(p.SetupInstructions) > 0 {
		out[planSetup] = p.SetupInstructions
	}
	if p.CleanupInstruction != nil {
		out[planCleanup] = p.CleanupInstruction
	}
	if len(p.OtherInstructions) > 0 {
		out[planOther] = p.OtherInstructions
	}
	if len(p.AddressLookupTableAddresses) > 0 {
		out[planLookupTables] = p.AddressLookupTableAddresses
	}
	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// LookupTable is an address lookup table and the addresses it indexes.
type LookupTable struct {
	Key   solana.PublicKey `json:"key"`
	State LookupTableState `json:"state"`
}

type LookupTableState struct {
	DeactivationSlot           codec.Uint64       `json:"deactivationSlot"`
	LastExtendedSlot           codec.Uint64       `json:"lastExtendedSlot"`
	LastExtendedSlotStartIndex uint8              `json:"lastExtendedSlotStartIndex"`
	Authority                  *solana.PublicKey  `json:"authority,omitempty"`
	Addresses                  []solana.PublicKey `json:"addresses"`
}

// IsActive reports whether the table has not been deactivated.
func (s LookupTableState) IsActive() bool {
	return uint64(s.DeactivationSlot) == math.MaxUint64
}
