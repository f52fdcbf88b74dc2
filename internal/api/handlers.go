package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/webcash/go-webcash/internal/economy"
	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/webcash"
)

func (a *API) TermsHTMLHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=7200")
	http.ServeFile(w, r, a.TermsHTMLPath)
}

func (a *API) TermsTextHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=7200")
	http.ServeFile(w, r, a.TermsTextPath)
}

func (a *API) TargetHandler(w http.ResponseWriter, r *http.Request) {
	s := a.Economy.Stats(time.Now())
	w.Header().Set("Cache-Control", "public, max-age=7200")
	jsonOK(w, TargetResponse{
		DifficultyTargetBits: s.Difficulty,
		Epoch:                s.Epoch,
		MiningAmount:         s.MiningAmount.String(),
		MiningSubsidyAmount:  s.SubsidyAmount.String(),
		Ratio:                s.Ratio(),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	s := a.Economy.Stats(time.Now())

	units := big.NewInt(webcash.UnitsPerWebcash)
	whole, frac := new(big.Int).DivMod(s.TotalCirculation, units, new(big.Int))
	var circulation interface{}
	if frac.Sign() == 0 {
		circulation = whole.Int64()
	} else {
		f, _ := new(big.Float).SetInt(s.TotalCirculation).Float64()
		circulation = f / float64(webcash.UnitsPerWebcash)
	}
	formatted := groupThousands(whole.String()) + webcash.Amount(frac.Int64()).String()[1:]

	w.Header().Set("Cache-Control", "public, max-age=10")
	jsonOK(w, StatsResponse{
		Circulation:          circulation,
		CirculationFormatted: formatted,
		Ratio:                s.Ratio(),
		MiningReports:        s.NumReports,
		Epoch:                s.Epoch,
		DifficultyTargetBits: s.Difficulty,
		MiningAmount:         s.MiningAmount.String(),
		MiningSubsidyAmount:  s.SubsidyAmount.String(),
	})
}

// groupThousands inserts comma separators into a non-negative decimal
// integer string.
func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	first := len(s) % 3
	if first == 0 {
		first = 3
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	out = append(out, s[:first]...)
	for i := first; i < len(s); i += 3 {
		out = append(out, ',')
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

func (a *API) ReplaceHandler(w http.ResponseWriter, r *http.Request) {
	received := time.Now()

	var req ReplaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "no JSON body")
		return
	}
	if !checkLegalese(req.Legalese) {
		jsonError(w, "didn't accept terms")
		return
	}

	if len(req.Webcashes) == 0 {
		jsonError(w, "no inputs")
		return
	}
	inputs, ok := parseSecrets(req.Webcashes)
	if !ok {
		jsonError(w, "can't parse inputs")
		return
	}
	totalIn, ok := sumEntries(inputs)
	if !ok {
		jsonError(w, "overflow")
		return
	}

	if len(req.NewWebcashes) == 0 {
		jsonError(w, "no outputs")
		return
	}
	outputs, ok := parseSecrets(req.NewWebcashes)
	if !ok {
		jsonError(w, "can't parse inputs")
		return
	}
	totalOut, ok := sumEntries(outputs)
	if !ok {
		jsonError(w, "overflow")
		return
	}

	if totalIn != totalOut {
		jsonError(w, "inbalance")
		return
	}

	if err := a.Economy.Replace(received, inputs, outputs); err != nil {
		jsonError(w, ledgerErrorString(err))
		return
	}
	jsonOK(w, statusResponse{Status: "success"})
}

// preimageDoc is the JSON document the proof of work commits to.  Raw
// messages preserve the distinction between a missing field and one of the
// wrong type.
type preimageDoc struct {
	Webcash    json.RawMessage `json:"webcash"`
	Subsidy    json.RawMessage `json:"subsidy"`
	Timestamp  json.RawMessage `json:"timestamp"`
	Difficulty json.RawMessage `json:"difficulty"`
}

func (a *API) MiningReportHandler(w http.ResponseWriter, r *http.Request) {
	received := time.Now()

	var body MiningReportBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "no JSON body")
		return
	}
	if !checkLegalese(body.Legalese) {
		jsonError(w, "didn't accept terms")
		return
	}

	if body.Preimage == "" {
		jsonError(w, "missing preimage")
		return
	}
	preimageStr, err := base64.StdEncoding.DecodeString(body.Preimage)
	if err != nil {
		jsonError(w, "preimage is not base64-encoded string")
		return
	}
	var doc preimageDoc
	if err := json.Unmarshal(preimageStr, &doc); err != nil {
		jsonError(w, "couldn't parse preimage as JSON")
		return
	}

	if doc.Webcash == nil {
		jsonError(w, "missing 'webcash' field in preimage")
		return
	}
	var webcashStrs []string
	if err := json.Unmarshal(doc.Webcash, &webcashStrs); err != nil {
		jsonError(w, "'webcash' field in preimage needs to be array of webcash secrets")
		return
	}
	outputs, ok := parseSecrets(webcashStrs)
	if !ok {
		jsonError(w, "'webcash' field in preimage needs to be array of webcash secrets")
		return
	}

	if doc.Subsidy == nil {
		jsonError(w, "missing 'subsidy' field in preimage")
		return
	}
	var subsidyStrs []string
	if err := json.Unmarshal(doc.Subsidy, &subsidyStrs); err != nil {
		jsonError(w, "'subsidy' field in preimage needs to be array of webcash secrets")
		return
	}
	subsidy, ok := parseSecrets(subsidyStrs)
	if !ok {
		jsonError(w, "'subsidy' field in preimage needs to be array of webcash secrets")
		return
	}

	hasTimestamp := false
	var timestamp time.Time
	if doc.Timestamp != nil {
		var ts float64
		if err := json.Unmarshal(doc.Timestamp, &ts); err != nil {
			jsonError(w, "'timestamp' field in preimage must be numeric")
			return
		}
		timestamp = time.Unix(int64(ts), 0)
		hasTimestamp = true
	}

	hasDifficulty := false
	var committed uint
	if doc.Difficulty != nil {
		if err := json.Unmarshal(doc.Difficulty, &committed); err != nil {
			jsonError(w, "'difficulty' field in preimage must be small positive integer")
			return
		}
		if committed > 255 {
			jsonError(w, "'difficulty' field in preimage is too high")
			return
		}
		hasDifficulty = true
	}

	miningTotal, ok := sumEntries(outputs)
	if !ok {
		jsonError(w, "overflow")
		return
	}

	// Every subsidy entry must appear verbatim among the outputs.
	byHash := make(map[[32]byte]webcash.Amount, len(outputs))
	for _, out := range outputs {
		byHash[out.Hash] = out.Amount
	}
	subsidyTotal, ok := sumEntries(subsidy)
	if !ok {
		jsonError(w, "overflow")
		return
	}
	for _, sub := range subsidy {
		amount, present := byHash[sub.Hash]
		if !present {
			jsonError(w, "missing subsidy from webcash")
			return
		}
		if amount != sub.Amount {
			jsonError(w, "subsidy doesn't match webcash")
			return
		}
	}

	if hasTimestamp {
		if timestamp.Before(received.Add(-2*time.Hour)) || timestamp.After(received.Add(2*time.Hour)) {
			jsonError(w, "timestamp of mining report must be within 2 hours of receipt by server")
			return
		}
	}

	// The proof of work covers the base64 text, not the decoded JSON.
	hash := sha256.Sum256([]byte(body.Preimage))
	bits := webcash.ApparentDifficulty(hash)
	if bits < economy.MinReportDifficulty { // DoS prevention
		jsonError(w, "difficulty too low")
		return
	}
	if hasDifficulty && bits < committed {
		jsonError(w, "proof-of-work doesn't match committed difficulty")
		return
	}

	next, err := a.Economy.ProcessMiningReport(received, &economy.MiningReportRequest{
		PreimageB64:         body.Preimage,
		Webcash:             outputs,
		WebcashTotal:        miningTotal,
		SubsidyTotal:        subsidyTotal,
		HasDifficulty:       hasDifficulty,
		CommittedDifficulty: committed,
		Bits:                bits,
	})
	if err != nil {
		jsonError(w, ledgerErrorString(err))
		return
	}

	logger.Infof("Got BLOCK!!! %s difficulty=%d num_reports=%d",
		hex.EncodeToString(hash[:]), next, a.Economy.NumReports())
	jsonOK(w, MiningReportResponse{Status: "success", DifficultyTarget: next})
}

func (a *API) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	var args []string
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		jsonError(w, "no JSON body")
		return
	}
	pubs := make([]webcash.PublicWebcash, len(args))
	for i, s := range args {
		pub, ok := webcash.ParsePublic(s)
		if !ok {
			jsonError(w, "arguments needs to be array of webcash public webcash strings")
			return
		}
		pubs[i] = pub
	}

	statuses, err := a.Economy.HealthCheck(pubs)
	if err != nil {
		logger.Errorf("health check query failed: %v", err)
		jsonError(w, "unknown")
		return
	}

	// Key results by the caller's exact input string, so a non-canonical
	// encoding (different hex capitalization, say) round-trips.
	results := make(map[string]HealthCheckEntry, len(args))
	for i, status := range statuses {
		entry := HealthCheckEntry{Spent: status.Spent}
		if status.Spent != nil && !*status.Spent {
			entry.Amount = status.Amount.String()
		}
		results[args[i]] = entry
	}
	jsonOK(w, HealthCheckResponse{Status: "success", Results: results})
}

// ledgerErrorString maps an economy error onto the protocol's short error
// strings, hiding the details of anything unexpected.
func ledgerErrorString(err error) string {
	for _, known := range []error{
		economy.ErrInputsNotFound,
		economy.ErrWrongAmount,
		economy.ErrReuse,
		economy.ErrReusedPreimage,
		economy.ErrOutputExists,
		economy.ErrWrongMining,
		economy.ErrWrongSubsidy,
		economy.ErrBelowCurrent,
		economy.ErrStaleCommitment,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	logger.Errorf("ledger operation failed: %v", err)
	return "unknown"
}
