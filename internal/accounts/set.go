// Package accounts holds the address set shared by every pipeline stage and
// the collector that extracts it from an instruction plan.
package accounts

import solana "github.com/gagliardetto/solana-go"

// Set is a deduplicated, insertion-ordered set of addresses. The zero value is
// not usable; call NewSet.
type Set struct {
	order []solana.PublicKey
	index map[solana.PublicKey]struct{}
}

func NewSet(keys ...solana.PublicKey) *Set {
	s := &Set{index: make(map[solana.PublicKey]struct{}, len(keys))}
	s.AddAll(keys...)
	return s
}

// Add inserts key and reports whether it was new.
func (s *Set) Add(key solana.PublicKey) bool {
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

func (s *Set) AddAll(keys ...solana.PublicKey) {
	for _, k := range keys {
		s.Add(k)
	}
}

func (s *Set) Has(key solana.PublicKey) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[key]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Slice returns a copy of the members in insertion order.
func (s *Set) Slice() []solana.PublicKey {
	if s == nil {
		return nil
	}
	return append([]solana.PublicKey(nil), s.order...)
}

// Union returns a new set with the members of s followed by the new members
// of each other set.
func (s *Set) Union(others ...*Set) *Set {
	out := NewSet(s.Slice()...)
	for _, o := range others {
		out.AddAll(o.Slice()...)
	}
	return out
}

// Strings returns the base58 form of every member in insertion order.
func (s *Set) Strings() []string {
	out := make([]string, 0, s.Len())
	for _, k := range s.Slice() {
		out = append(out, k.String())
	}
	return out
}

// ParseStrings builds a set from base58 addresses.
func ParseStrings(values []string) (*Set, error) {
	s := NewSet()
	for _, v := range values {
		key, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return nil, err
		}
		s.Add(key)
	}
	return s, nil
}
