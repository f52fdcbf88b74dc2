package api

import (
	"encoding/json"
	"net/http"

	"github.com/webcash/go-webcash/internal/economy"
	"github.com/webcash/go-webcash/internal/webcash"
)

type API struct {
	Economy       *economy.Economy
	TermsHTMLPath string
	TermsTextPath string
}

func NewAPI(econ *economy.Economy, termsHTML, termsText string) *API {
	return &API{
		Economy:       econ,
		TermsHTMLPath: termsHTML,
		TermsTextPath: termsText,
	}
}

// jsonError writes the protocol's uniform failure shape.  Every validation
// failure is a 500 with a short error string, which clients match on.
func jsonError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(statusResponse{Status: "error", Error: msg})
}

func jsonOK(w http.ResponseWriter, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func checkLegalese(l Legalese) bool {
	return l.Terms != nil && *l.Terms
}

// parseSecrets parses an array of secret claim codes, rejecting duplicates
// by public hash.
func parseSecrets(arr []string) ([]economy.Entry, bool) {
	entries := make([]economy.Entry, 0, len(arr))
	seen := make(map[[32]byte]struct{}, len(arr))
	for _, s := range arr {
		sec, ok := webcash.ParseSecret(s)
		if !ok {
			return nil, false
		}
		pub := sec.Public()
		if _, dup := seen[pub.Hash]; dup {
			return nil, false
		}
		seen[pub.Hash] = struct{}{}
		entries = append(entries, economy.Entry{Hash: pub.Hash, Amount: sec.Amount})
	}
	return entries, true
}

// sumEntries totals the amounts with the same overflow discipline as the
// ledger: every amount must be at least one unit and the running sum must
// stay positive.
func sumEntries(entries []economy.Entry) (webcash.Amount, bool) {
	var total webcash.Amount
	for _, e := range entries {
		total += e.Amount
		if total < 1 || e.Amount < 1 {
			return 0, false
		}
	}
	return total, true
}
