package registry

import solana "github.com/gagliardetto/solana-go"

// Known describes an account that every provisioned validator needs,
// whatever route the aggregator picks.
type Known struct {
	Address solana.PublicKey
	Label   string
	Kind    string
}

const (
	KindProgram = "program"
	KindMint    = "mint"
)

var (
	JupiterProgram        = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	JupiterProgramData    = solana.MustPublicKeyFromBase58("4Ec7ZxZS6Sbdg5UGSLHbAnM7GQHp2eFd4KYWRexAipQT")
	JupiterEventAuthority = solana.MustPublicKeyFromBase58("D8cy77BBepLMngZx6ZukaTff5hCt1HrWyKk3Hnd9oitf")

	USDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	WSOLMint = solana.SolMint
	USDTMint = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")

	// VaultProgram owns the per-swap vault PDAs derived by `provision --vault-*`.
	VaultProgram = solana.MustPublicKeyFromBase58("DvNur6pprGPLZHobyxoLxAoKvj8E1YjR83m94HperYwz")
)

var knownAccounts = []Known{
	{Address: JupiterProgram, Label: "Jupiter Aggregator", Kind: KindProgram},
	{Address: JupiterProgramData, Label: "Jupiter Executable Data Account", Kind: KindProgram},
	{Address: JupiterEventAuthority, Label: "Jupiter Aggregator Event Authority", Kind: KindProgram},
	{Address: USDCMint, Label: "USDC", Kind: KindMint},
	{Address: WSOLMint, Label: "WSOL", Kind: KindMint},
	{Address: USDTMint, Label: "USDT", Kind: KindMint},
}

// Required returns the accounts cloned on every run, programs first.
func Required() []Known {
	return append([]Known(nil), knownAccounts...)
}

// RequiredAddresses is Required reduced to addresses.
func RequiredAddresses() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(knownAccounts))
	for _, k := range knownAccounts {
		out = append(out, k.Address)
	}
	return out
}

// Labels maps every known address to its human-readable name.
func Labels() map[solana.PublicKey]string {
	out := make(map[solana.PublicKey]string, len(knownAccounts))
	for _, k := range knownAccounts {
		out[k.Address] = k.Label
	}
	return out
}

func Label(addr solana.PublicKey) (string, bool) {
	for _, k := range knownAccounts {
		if k.Address == addr {
			return k.Label, true
		}
	}
	return "", false
}
