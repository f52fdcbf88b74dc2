package webcash

import (
	"math"
	"strconv"
	"strings"
)

// Amount is a quantity of webcash counted in units of 10^-8 of a webcash
// ("e-satoshis").  It is signed so that arithmetic underflow is representable,
// but a negative amount is never valid in any ledger operation.
type Amount int64

// UnitsPerWebcash is the number of indivisible units in one webcash.
const UnitsPerWebcash = 100_000_000

// ParseAmount parses a fractional-precision decimal with no more than 8
// digits past the decimal point, with a leading minus sign if the value is
// negative.  The value may be wrapped in double quotes so that both JSON
// string- and number-encoded amounts are accepted.  The parser is
// deliberately strict: it accepts only strings that Amount.String could have
// produced (modulo the optional quotes and redundant trailing fractional
// zeros).
func ParseAmount(s string) (Amount, bool) {
	if len(s) == 0 {
		return 0, false
	}
	if strings.IndexByte(s, 0) >= 0 {
		return 0, false
	}

	if s[0] == '"' {
		last := strings.LastIndexByte(s, '"')
		if last == 0 {
			// An opening quote and nothing else is not a valid encoding.
			return 0, false
		}
		s = s[1:last]
		if len(s) == 0 {
			return 0, false
		}
	}

	negative := s[0] == '-'
	if negative {
		s = s[1:]
		// A single minus sign is not a valid encoding.
		if len(s) == 0 {
			return 0, false
		}
	}

	// A leading digit is required, even for fractional amounts.
	if !isDigit(s[0]) {
		return 0, false
	}
	// A leading zero is only allowed if followed by the decimal point.
	if s[0] == '0' && len(s) > 1 && s[1] != '.' {
		return 0, false
	}

	var i int64
	pos := 0
	for ; pos < len(s) && isDigit(s[pos]); pos++ {
		d := int64(s[pos] - '0')
		// Overflow check at each multiplication.
		if i > (math.MaxInt64-d)/10 {
			return 0, false
		}
		i = i*10 + d
	}

	// Fractional digits are optional.
	frac := 0
	if pos < len(s) {
		if s[pos] != '.' {
			return 0, false
		}
		pos++
		// If there is a decimal point, there must be at least one digit.
		if pos == len(s) {
			return 0, false
		}
		for ; frac < 8 && pos < len(s); frac++ {
			if !isDigit(s[pos]) {
				return 0, false
			}
			d := int64(s[pos] - '0')
			if i > (math.MaxInt64-d)/10 {
				return 0, false
			}
			i = i*10 + d
			pos++
		}
		// More than 8 fractional digits, or trailing junk.
		if pos != len(s) {
			return 0, false
		}
	}
	for ; frac < 8; frac++ {
		if i > math.MaxInt64/10 {
			return 0, false
		}
		i *= 10
	}

	if negative {
		i = -i
	}
	return Amount(i), true
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// String renders the amount as a fixed-precision decimal.  Terminal zero
// fractional digits, up to and including the decimal point itself, are not
// output: 3000000 renders as "0.03", 3000000300 as "30.000003".
func (a Amount) String() string {
	u := uint64(a)
	var sb strings.Builder
	if a < 0 {
		sb.WriteByte('-')
		u = -u
	}
	sb.WriteString(strconv.FormatUint(u/UnitsPerWebcash, 10))
	if rem := u % UnitsPerWebcash; rem != 0 {
		frac := strconv.FormatUint(rem, 10)
		sb.WriteByte('.')
		for i := len(frac); i < 8; i++ {
			sb.WriteByte('0')
		}
		frac = strings.TrimRight(frac, "0")
		sb.WriteString(frac)
	}
	return sb.String()
}

// MarshalJSON encodes the amount as a decimal string, matching the encoding
// used by the production server.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a string- or number-encoded decimal amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	amt, ok := ParseAmount(string(data))
	if !ok {
		return &AmountError{Input: string(data)}
	}
	*a = amt
	return nil
}

// AmountError reports a malformed textual amount.
type AmountError struct {
	Input string
}

func (e *AmountError) Error() string {
	return "webcash: invalid amount " + strconv.Quote(e.Input)
}
