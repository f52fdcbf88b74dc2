package webcash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SecretWebcash is a bearer claim code: whoever knows the secret can spend
// the amount.  The secret is kept in its ASCII hex form because the public
// hash is defined over those 64 hex characters, not the raw bytes.
type SecretWebcash struct {
	Amount Amount
	Secret string
}

// PublicWebcash identifies an output on the ledger without revealing the
// spending secret.
type PublicWebcash struct {
	Amount Amount
	Hash   [sha256.Size]byte
}

const secretHexLen = 2 * sha256.Size

// NewSecret draws a fresh 32-byte secret from the CSPRNG and hex-encodes it.
func NewSecret(amount Amount) (SecretWebcash, error) {
	var sk [sha256.Size]byte
	if _, err := rand.Read(sk[:]); err != nil {
		return SecretWebcash{}, err
	}
	return SecretWebcash{Amount: amount, Secret: hex.EncodeToString(sk[:])}, nil
}

// Public derives the public claim code.  The hash is computed over the ASCII
// hex representation of the secret, an interoperability requirement of the
// webcash protocol.
func (sk SecretWebcash) Public() PublicWebcash {
	return PublicWebcash{
		Amount: sk.Amount,
		Hash:   sha256.Sum256([]byte(sk.Secret)),
	}
}

// String renders the claim code as e<amount>:secret:<hex>.  Negative amounts
// are clamped to zero on output, matching the reference implementation.
func (sk SecretWebcash) String() string {
	return claimString(sk.Amount, "secret", sk.Secret)
}

func (pk PublicWebcash) String() string {
	return claimString(pk.Amount, "public", hex.EncodeToString(pk.Hash[:]))
}

func claimString(amount Amount, kind, payload string) string {
	if amount < 0 {
		amount = 0
	}
	return "e" + amount.String() + ":" + kind + ":" + payload
}

// ParseSecret parses a claim code of the form e<amount>:secret:<64 hex>.
// An optional enclosing pair of double quotes is stripped first.  The hex
// casing of the secret is preserved as given, since the public derivation is
// over the literal characters.
func ParseSecret(s string) (SecretWebcash, bool) {
	amount, payload, ok := splitClaim(s, "secret")
	if !ok {
		return SecretWebcash{}, false
	}
	return SecretWebcash{Amount: amount, Secret: payload}, true
}

// ParsePublic parses a claim code of the form e<amount>:public:<64 hex>.
func ParsePublic(s string) (PublicWebcash, bool) {
	amount, payload, ok := splitClaim(s, "public")
	if !ok {
		return PublicWebcash{}, false
	}
	pk := PublicWebcash{Amount: amount}
	raw, err := hex.DecodeString(strings.ToLower(payload))
	if err != nil {
		return PublicWebcash{}, false
	}
	copy(pk.Hash[:], raw)
	return pk, true
}

func splitClaim(s, kind string) (Amount, string, bool) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if len(s) == 0 || s[0] != 'e' {
		return 0, "", false
	}
	rest := s[1:]
	sep := strings.IndexByte(rest, ':')
	if sep < 0 {
		return 0, "", false
	}
	amount, ok := ParseAmount(rest[:sep])
	if !ok {
		return 0, "", false
	}
	rest = rest[sep+1:]
	if !strings.HasPrefix(rest, kind+":") {
		return 0, "", false
	}
	payload := rest[len(kind)+1:]
	if len(payload) != secretHexLen || !isHex(payload) {
		return 0, "", false
	}
	return amount, payload, true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case '0' <= c && c <= '9':
		case 'a' <= c && c <= 'f':
		case 'A' <= c && c <= 'F':
		default:
			return false
		}
	}
	return true
}
