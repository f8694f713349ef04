package lookup

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/ggonzalez94/clonekit/internal/codec"
	"github.com/ggonzalez94/clonekit/internal/model"
)

const (
	// HeaderSize is the fixed metadata prefix of a lookup table account.
	HeaderSize = 56

	lookupTableTypeIndex = 1
)

// Decode parses the raw data of an address lookup table account.
func Decode(data []byte) (model.LookupTableState, error) {
	var state model.LookupTableState
	if len(data) < HeaderSize {
		return state, fmt.Errorf("lookup table data too short: %d bytes", len(data))
	}
	if (len(data)-HeaderSize)%solana.PublicKeyLength != 0 {
		return state, fmt.Errorf("lookup table address region of %d bytes is not a multiple of %d", len(data)-HeaderSize, solana.PublicKeyLength)
	}

	dec := bin.NewBinDecoder(data)
	typeIndex, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return state, fmt.Errorf("read type index: %w", err)
	}
	if typeIndex != lookupTableTypeIndex {
		return state, fmt.Errorf("account is not a lookup table (type index %d)", typeIndex)
	}
	deactivation, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return state, fmt.Errorf("read deactivation slot: %w", err)
	}
	lastExtended, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return state, fmt.Errorf("read last extended slot: %w", err)
	}
	startIndex, err := dec.ReadUint8()
	if err != nil {
		return state, fmt.Errorf("read start index: %w", err)
	}
	hasAuthority, err := dec.ReadUint8()
	if err != nil {
		return state, fmt.Errorf("read authority tag: %w", err)
	}
	authority, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return state, fmt.Errorf("read authority: %w", err)
	}

	state.DeactivationSlot = codec.Uint64(deactivation)
	state.LastExtendedSlot = codec.Uint64(lastExtended)
	state.LastExtendedSlotStartIndex = startIndex
	if hasAuthority == 1 {
		key := solana.PublicKeyFromBytes(authority)
		state.Authority = &key
	}

	body := data[HeaderSize:]
	state.Addresses = make([]solana.PublicKey, 0, len(body)/solana.PublicKeyLength)
	for off := 0; off < len(body); off += solana.PublicKeyLength {
		state.Addresses = append(state.Addresses, solana.PublicKeyFromBytes(body[off:off+solana.PublicKeyLength]))
	}
	return state, nil
}
