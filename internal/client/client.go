// Package client speaks the webcash server's JSON-over-HTTP protocol on
// behalf of the miner and the wallet.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/webcash/go-webcash/internal/webcash"
)

// ProtocolSettings mirrors the server's /api/v1/target response.
type ProtocolSettings struct {
	// MiningAmount is the amount the miner is allowed to claim.
	MiningAmount webcash.Amount
	// SubsidyAmount is the amount which is surrendered to the server
	// operator.
	SubsidyAmount webcash.Amount
	// Ratio of issuance distributed to the expected amount.
	Ratio float64
	// Difficulty is the number of leading zero bits required for a work
	// candidate to be accepted by the server.
	Difficulty uint
}

// RejectError is a structured server rejection: the request reached the
// server and the server said no.
type RejectError struct {
	StatusCode int
	Message    string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("server rejected request: status_code=%d, error=%q", e.StatusCode, e.Message)
}

// Benign reports whether the rejection indicates the server already has
// this webcash, which happens when a submission is retried after a timed
// out but actually successful request.
func (e *RejectError) Benign() bool {
	return e.StatusCode == http.StatusBadRequest && e.Message == "Didn't use a new secret value."
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// TermsOfService fetches the plain-text terms the user must accept before
// mining.
func (c *Client) TermsOfService(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/terms/text", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("invalid response to terms of service request: status_code=%d, text=%q", resp.StatusCode, body)
	}
	return string(body), nil
}

// amountField tolerates servers that send amounts as JSON numbers rather
// than strings.
func amountField(raw json.RawMessage) (webcash.Amount, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	amount, ok := webcash.ParseAmount(s)
	if !ok || amount < 0 {
		return 0, fmt.Errorf("expected fractional-precision numeric value, got %q", raw)
	}
	return amount, nil
}

// ProtocolSettings fetches the current difficulty target and issuance
// amounts.
func (c *Client) ProtocolSettings(ctx context.Context) (ProtocolSettings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/target", nil)
	if err != nil {
		return ProtocolSettings{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ProtocolSettings{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ProtocolSettings{}, fmt.Errorf("invalid response to protocol settings request: status_code=%d, text=%q", resp.StatusCode, body)
	}

	var wire struct {
		DifficultyTargetBits uint            `json:"difficulty_target_bits"`
		Ratio                json.RawMessage `json:"ratio"`
		MiningAmount         json.RawMessage `json:"mining_amount"`
		MiningSubsidyAmount  json.RawMessage `json:"mining_subsidy_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return ProtocolSettings{}, err
	}

	var settings ProtocolSettings
	settings.Difficulty = wire.DifficultyTargetBits
	if err := json.Unmarshal(wire.Ratio, &settings.Ratio); err != nil {
		var s string
		if err := json.Unmarshal(wire.Ratio, &s); err != nil {
			return ProtocolSettings{}, fmt.Errorf("expected real number for 'ratio' field, got %q", wire.Ratio)
		}
		settings.Ratio, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return ProtocolSettings{}, fmt.Errorf("expected real number for 'ratio' field, got %q", wire.Ratio)
		}
	}
	if settings.MiningAmount, err = amountField(wire.MiningAmount); err != nil {
		return ProtocolSettings{}, fmt.Errorf("bad 'mining_amount' field: %w", err)
	}
	if settings.SubsidyAmount, err = amountField(wire.MiningSubsidyAmount); err != nil {
		return ProtocolSettings{}, fmt.Errorf("bad 'mining_subsidy_amount' field: %w", err)
	}
	return settings, nil
}

// ReportResult is the server's answer to an accepted mining report.
type ReportResult struct {
	DifficultyTarget uint
	HasDifficulty    bool
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// MiningReport submits a solved proof of work.  Work is the hash of the
// preimage in decimal; the server recomputes it regardless.  A transport
// failure comes back as an ordinary error and the caller may resubmit; a
// server rejection comes back as *RejectError.
func (c *Client) MiningReport(ctx context.Context, preimageB64, work string) (ReportResult, error) {
	// Acceptance of terms of service is hard-coded because it is checked
	// for on startup.
	body := fmt.Sprintf(`{"preimage": %q, "work": %s, "legalese": {"terms": true}}`, preimageB64, work)
	resp, err := c.postJSON(ctx, "/api/v1/mining_report", []byte(body))
	if err != nil {
		return ReportResult{}, err
	}
	defer resp.Body.Close()

	var wire struct {
		Status           string `json:"status"`
		Error            string `json:"error"`
		DifficultyTarget *uint  `json:"difficulty_target"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&wire)
	if resp.StatusCode != http.StatusOK {
		return ReportResult{}, &RejectError{StatusCode: resp.StatusCode, Message: wire.Error}
	}
	if decodeErr != nil {
		return ReportResult{}, decodeErr
	}
	var result ReportResult
	if wire.DifficultyTarget != nil {
		result.DifficultyTarget = *wire.DifficultyTarget
		result.HasDifficulty = true
	}
	return result, nil
}

// Replace atomically swaps the input secrets for the output secrets on the
// server's ledger.
func (c *Client) Replace(ctx context.Context, inputs, outputs []webcash.SecretWebcash) error {
	req := struct {
		Legalese     map[string]bool `json:"legalese"`
		Webcashes    []string        `json:"webcashes"`
		NewWebcashes []string        `json:"new_webcashes"`
	}{
		Legalese:     map[string]bool{"terms": true},
		Webcashes:    make([]string, len(inputs)),
		NewWebcashes: make([]string, len(outputs)),
	}
	for i, in := range inputs {
		req.Webcashes[i] = in.String()
	}
	for i, out := range outputs {
		req.NewWebcashes[i] = out.String()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.postJSON(ctx, "/api/v1/replace", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var wire struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&wire)
		return &RejectError{StatusCode: resp.StatusCode, Message: wire.Error}
	}
	return nil
}

// HealthStatus mirrors one entry of the health_check response.
type HealthStatus struct {
	Spent  *bool  `json:"spent"`
	Amount string `json:"amount,omitempty"`
}

// HealthCheck queries the spent state of public claim codes, keyed by the
// query strings exactly as given.
func (c *Client) HealthCheck(ctx context.Context, queries []string) (map[string]HealthStatus, error) {
	body, err := json.Marshal(queries)
	if err != nil {
		return nil, err
	}
	resp, err := c.postJSON(ctx, "/api/v1/health_check", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var wire struct {
		Status  string                  `json:"status"`
		Error   string                  `json:"error"`
		Results map[string]HealthStatus `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RejectError{StatusCode: resp.StatusCode, Message: wire.Error}
	}
	return wire.Results, nil
}
