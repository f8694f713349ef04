// Package codec is the JSON dialect used for on-disk swap caches. Plain JSON
// numbers lose precision above 2^53, so arbitrary-precision integers are
// written as strings carrying a trailing "n" marker ("18446744073709551615n")
// and account addresses are written in base58.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"

	solana "github.com/gagliardetto/solana-go"
)

var bigIntMarker = regexp.MustCompile(`^-?[0-9]+n$`)

// FormatBigInt renders n with the big-integer marker.
func FormatBigInt(n *big.Int) string {
	return n.String() + "n"
}

// ParseBigInt reverses FormatBigInt. ok is false for any string that does not
// carry the marker.
func ParseBigInt(s string) (*big.Int, bool) {
	if !bigIntMarker.MatchString(s) {
		return nil, false
	}
	return new(big.Int).SetString(s[:len(s)-1], 10)
}

// Uint64 is a uint64 that is always written with the big-integer marker.
// It reads the marker form, a bare JSON number, or a decimal string.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatBigInt(new(big.Int).SetUint64(uint64(u))))
}

func (u *Uint64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if n, ok := ParseBigInt(raw); ok {
			return u.setBig(n, raw)
		}
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("invalid uint64 value %s", string(data))
	}
	return u.setBig(n, raw)
}

func (u *Uint64) setBig(n *big.Int, raw string) error {
	if n.Sign() < 0 || !n.IsUint64() {
		return fmt.Errorf("value %s out of uint64 range", raw)
	}
	*u = Uint64(n.Uint64())
	return nil
}

// EncodeValue rewrites an untyped value tree so every big integer and address
// survives a JSON round trip. Values it does not recognise are returned as is.
func EncodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = EncodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = EncodeValue(item)
		}
		return out
	case *big.Int:
		if t == nil {
			return nil
		}
		return FormatBigInt(t)
	case big.Int:
		return FormatBigInt(&t)
	case solana.PublicKey:
		return t.String()
	case *solana.PublicKey:
		if t == nil {
			return nil
		}
		return t.String()
	default:
		return v
	}
}

// DecodeValue reverses EncodeValue for trees produced by Unmarshal. Marker
// strings become *big.Int; addresses stay strings because untyped trees carry
// no schema telling them apart from other base58 text.
func DecodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = DecodeValue(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = DecodeValue(item)
		}
		return t
	case string:
		if n, ok := ParseBigInt(t); ok {
			return n
		}
		return t
	default:
		return v
	}
}

// Marshal writes v as indented JSON after EncodeValue.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(EncodeValue(v), "", "  ")
}

// Unmarshal decodes data into v keeping numbers as json.Number. When v points
// to an untyped value the result is passed through DecodeValue.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	switch target := v.(type) {
	case *any:
		*target = DecodeValue(*target)
	case *map[string]any:
		DecodeValue(*target)
	case *[]any:
		DecodeValue(*target)
	}
	return nil
}
