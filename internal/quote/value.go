package quote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stickerquote/internal/pricing"
)

// Value is a form field as the sidebar sent it. Clients may post it as a
// JSON number or a JSON string; both are kept verbatim for display.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*v = ""
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*v = Value(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a number or string, got %s", s)
	}
	*v = Value(n.String())
	return nil
}

func (v Value) String() string { return string(v) }

// Decimal coerces the value. Blank, non-numeric or out-of-range text is zero.
func (v Value) Decimal() decimal.Decimal { return pricing.ParseDimension(string(v)) }

// Number coerces the value and reports whether it is within range.
func (v Value) Number() (decimal.Decimal, bool) { return pricing.ParseNumber(string(v)) }
