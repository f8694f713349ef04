package accounts

import "github.com/ggonzalez94/clonekit/internal/model"

// Collect returns every distinct address a plan references directly: the
// swap instruction's accounts, each setup instruction's accounts, the cleanup
// instruction's accounts and the lookup table addresses themselves, which
// must be cloned as well.
func Collect(plan model.InstructionPlan) *Set {
	s := NewSet()
	addMetas(s, plan.SwapInstruction.Accounts)
	for _, ix := range plan.SetupInstructions {
		addMetas(s, ix.Accounts)
	}
	if plan.CleanupInstruction != nil {
		addMetas(s, plan.CleanupInstruction.Accounts)
	}
	s.AddAll(plan.AddressLookupTableAddresses...)
	return s
}

func addMetas(s *Set, metas []model.AccountMeta) {
	for _, m := range metas {
		s.Add(m.Pubkey)
	}
}
