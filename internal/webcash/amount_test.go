package webcash

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"0.1", 10000000},
		{`"0.1"`, 10000000},
		{"0.00000001", 1},
		{`"0.00000001"`, 1},
		{"30", 3000000000},
		{`"30"`, 3000000000},
		{"30.0", 3000000000},
		{`"30.0"`, 3000000000},
		{"30.000003", 3000000300},
		{"-1", -100000000},
		{"0", 0},
		{"200000", 20000000000000},
	}
	for _, c := range cases {
		got, ok := ParseAmount(c.in)
		require.True(t, ok, "ParseAmount(%q)", c.in)
		assert.Equal(t, c.want, got, "ParseAmount(%q)", c.in)
	}
}

func TestParseAmountRejects(t *testing.T) {
	bad := []string{
		"",
		`"`,
		`""`,
		"-",
		`"-"`,
		"0.000000001",          // ninth fractional digit
		`"0.000000001"`,        // same, quoted
		"01",                   // leading zero
		"00.1",                 // leading zero
		".5",                   // no integer part
		"3.",                   // decimal point with no digits
		"1x",                   // trailing junk
		"1.2.3",                // second decimal point
		"1,5",                  // wrong separator
		"\x0030",               // embedded NUL
		"30\x00",               // embedded NUL
		`""30.0"`,              // quote inside the quoted region
		`""30.0""`,             // doubled quotes
		`""30".0"`,             // quote mid-number
		"9223372036854775808",  // integer overflow
		"92233720368.54775808", // overflow after scaling
	}
	for _, s := range bad {
		_, ok := ParseAmount(s)
		assert.False(t, ok, "ParseAmount(%q) should fail", s)
	}
}

func TestAmountString(t *testing.T) {
	cases := []struct {
		in   Amount
		want string
	}{
		{3, "0.00000003"},
		{30, "0.0000003"},
		{300, "0.000003"},
		{3000, "0.00003"},
		{30000, "0.0003"},
		{300000, "0.003"},
		{3000000, "0.03"},
		{30000000, "0.3"},
		{300000000, "3"},
		{3000000000, "30"},
		{3000000300, "30.000003"},
		{0, "0"},
		{-150000000, "-1.5"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.in.String())
	}
}

func TestAmountRoundTrip(t *testing.T) {
	values := []Amount{0, 1, 7, 99, 100000000, 123456789, 20000000000000, 1000000000000}
	for _, v := range values {
		got, ok := ParseAmount(v.String())
		require.True(t, ok, "round-trip %d", v)
		assert.Equal(t, v, got)
	}
}

func TestAmountJSON(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"0.05"`), &a))
	assert.Equal(t, Amount(5000000), a)
	require.NoError(t, json.Unmarshal([]byte(`30`), &a))
	assert.Equal(t, Amount(3000000000), a)

	out, err := json.Marshal(Amount(3000000300))
	require.NoError(t, err)
	assert.Equal(t, `"30.000003"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &a))
}
