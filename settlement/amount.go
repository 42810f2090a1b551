package settlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is a non-negative whole-unit payment amount as understood by the
// settlement backend. It serialises as a bare JSON number.
type Amount struct {
	v uint256.Int
}

// NewAmount wraps a uint64 amount.
func NewAmount(units uint64) Amount {
	var a Amount
	a.v.SetUint64(units)
	return a
}

// ParseAmount parses a decimal amount. A zero fractional part ("5.0") is
// accepted; any other fraction is rejected.
func ParseAmount(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if whole, frac, ok := strings.Cut(trimmed, "."); ok {
		if strings.Trim(frac, "0") != "" {
			return Amount{}, fmt.Errorf("settlement: fractional amount %q not supported", raw)
		}
		trimmed = whole
	}
	if trimmed == "" {
		return Amount{}, fmt.Errorf("settlement: amount required")
	}
	parsed, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return Amount{}, fmt.Errorf("settlement: parse amount %q: %w", raw, err)
	}
	return Amount{v: *parsed}, nil
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Equal reports whether both amounts hold the same value.
func (a Amount) Equal(other Amount) bool { return a.v.Eq(&other.v) }

// String renders the amount in base 10.
func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw, err := decodeScalar(data)
	if err != nil {
		return err
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// decodeScalar returns the textual form of a JSON string or number.
func decodeScalar(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", fmt.Errorf("settlement: expected string or number, got %s", string(trimmed))
	}
	return n.String(), nil
}
