package id

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

// VaultSeeds identify a swap vault PDA: the pair being swapped, the owner,
// and the amounts and deadline the vault was opened with.
type VaultSeeds struct {
	InputMint    solana.PublicKey
	OutputMint   solana.PublicKey
	Owner        solana.PublicKey
	Amount       uint64
	MinAmountOut uint64
	Deadline     uint64
}

func (s VaultSeeds) bytes() [][]byte {
	return [][]byte{
		[]byte("vault"),
		s.InputMint.Bytes(),
		s.OutputMint.Bytes(),
		s.Owner.Bytes(),
		le64(s.Amount),
		le64(s.MinAmountOut),
		le64(s.Deadline),
	}
}

// DeriveVault returns the vault PDA owned by program and its bump seed.
func DeriveVault(program solana.PublicKey, seeds VaultSeeds) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds.bytes(), program)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive vault address: %w", err)
	}
	return addr, bump, nil
}

func le64(v uint64) []byte {
	var buf bytes.Buffer
	_ = bin.NewBinEncoder(&buf).WriteUint64(v, bin.LE)
	return buf.Bytes()
}
