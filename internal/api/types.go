package api

import "encoding/json"

// Wire types for the JSON-over-HTTP protocol.  Field names are part of the
// protocol and must not change.

type Legalese struct {
	Terms *bool `json:"terms"`
}

type ReplaceRequest struct {
	Legalese     Legalese `json:"legalese"`
	Webcashes    []string `json:"webcashes"`
	NewWebcashes []string `json:"new_webcashes"`
}

type MiningReportBody struct {
	Legalese Legalese `json:"legalese"`
	// Preimage is base64; it decodes to the JSON document the proof of
	// work commits to.
	Preimage string `json:"preimage"`
	// Work is the claimed hash value, sent as a bare 256-bit decimal
	// number.  json.Number keeps the digits intact; a float64 could not.
	// It is never trusted; the server recomputes SHA-256 of the preimage.
	Work json.Number `json:"work,omitempty"`
}

type MiningReportResponse struct {
	Status           string `json:"status"`
	DifficultyTarget uint   `json:"difficulty_target"`
}

type TargetResponse struct {
	DifficultyTargetBits uint    `json:"difficulty_target_bits"`
	Epoch                uint64  `json:"epoch"`
	MiningAmount         string  `json:"mining_amount"`
	MiningSubsidyAmount  string  `json:"mining_subsidy_amount"`
	Ratio                float64 `json:"ratio"`
}

// HealthCheckEntry reports one queried claim code.  Spent is a three-state
// value: null when the hash has never been seen, false while unspent, true
// once consumed.
type HealthCheckEntry struct {
	Spent  *bool  `json:"spent"`
	Amount string `json:"amount,omitempty"`
}

type HealthCheckResponse struct {
	Status  string                      `json:"status"`
	Results map[string]HealthCheckEntry `json:"results"`
}

type StatsResponse struct {
	// Circulation is a whole number of webcash when the total has no
	// fractional part, a float otherwise.
	Circulation          interface{} `json:"circulation"`
	CirculationFormatted string      `json:"circulation_formatted"`
	Ratio                float64     `json:"ratio"`
	MiningReports        uint64      `json:"mining_reports"`
	Epoch                uint64      `json:"epoch"`
	DifficultyTargetBits uint        `json:"difficulty_target_bits"`
	MiningAmount         string      `json:"mining_amount"`
	MiningSubsidyAmount  string      `json:"mining_subsidy_amount"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
