package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webcash/go-webcash/internal/api"
	"github.com/webcash/go-webcash/internal/economy"
	"github.com/webcash/go-webcash/internal/webcash"
)

const minedPreimage = `{"legalese": {"terms": true}, "webcash": ["e190000:secret:b0e7525b420bc6efa5c356d0bb707d96a9d599c5c218134bd0f1dc5cf107e213", "e10000:secret:301b4fe3587ac6a871c6c7d4e06595d4eab9572a0515fe7295067d4e52772ed2"], "subsidy": ["e10000:secret:301b4fe3587ac6a871c6c7d4e06595d4eab9572a0515fe7295067d4e52772ed2"], "difficulty": 28, "nonce":      1366624}`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	econ, err := economy.Open(economy.Options{
		Path:    filepath.Join(dir, "economy.db"),
		Genesis: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	t.Cleanup(func() { econ.Close() })

	termsPath := filepath.Join(dir, "terms.text")
	require.NoError(t, os.WriteFile(termsPath, []byte("test terms\n"), 0644))

	srv := httptest.NewServer(api.NewServer("", api.NewAPI(econ, termsPath, termsPath)).Handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestTermsOfService(t *testing.T) {
	c := newTestClient(t)
	terms, err := c.TermsOfService(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test terms\n", terms)
}

func TestProtocolSettings(t *testing.T) {
	c := newTestClient(t)
	settings, err := c.ProtocolSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint(28), settings.Difficulty)
	require.Equal(t, webcash.Amount(20000000000000), settings.MiningAmount)
	require.Equal(t, webcash.Amount(1000000000000), settings.SubsidyAmount)
	require.Equal(t, 1.0, settings.Ratio)
}

func TestMiningReportRoundTrip(t *testing.T) {
	c := newTestClient(t)
	preimage := base64.StdEncoding.EncodeToString([]byte(minedPreimage))

	result, err := c.MiningReport(context.Background(), preimage, "0")
	require.NoError(t, err)
	require.True(t, result.HasDifficulty)
	require.Equal(t, uint(28), result.DifficultyTarget)

	// Resubmitting surfaces the server rejection as a RejectError.
	_, err = c.MiningReport(context.Background(), preimage, "0")
	var reject *RejectError
	require.ErrorAs(t, err, &reject)
	require.Equal(t, http.StatusInternalServerError, reject.StatusCode)
	require.Equal(t, "reused preimage", reject.Message)
	require.False(t, reject.Benign())
}

func TestReplaceRoundTrip(t *testing.T) {
	c := newTestClient(t)
	preimage := base64.StdEncoding.EncodeToString([]byte(minedPreimage))
	_, err := c.MiningReport(context.Background(), preimage, "0")
	require.NoError(t, err)

	keep, ok := webcash.ParseSecret("e190000:secret:b0e7525b420bc6efa5c356d0bb707d96a9d599c5c218134bd0f1dc5cf107e213")
	require.True(t, ok)
	change, err := webcash.NewSecret(keep.Amount)
	require.NoError(t, err)

	require.NoError(t, c.Replace(context.Background(), []webcash.SecretWebcash{keep}, []webcash.SecretWebcash{change}))

	// The swapped-out secret is spent, the change unspent.
	results, err := c.HealthCheck(context.Background(), []string{
		keep.Public().String(),
		change.Public().String(),
	})
	require.NoError(t, err)
	require.True(t, *results[keep.Public().String()].Spent)
	require.False(t, *results[change.Public().String()].Spent)
	require.Equal(t, "190000", results[change.Public().String()].Amount)

	// A second replacement of the same input is rejected.
	err = c.Replace(context.Background(), []webcash.SecretWebcash{keep}, []webcash.SecretWebcash{change})
	var reject *RejectError
	require.ErrorAs(t, err, &reject)
	require.Equal(t, "input(s) not found", reject.Message)
}

func TestBenignRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","error":"Didn't use a new secret value."}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.MiningReport(context.Background(), "cHJlaW1hZ2U=", "0")
	var reject *RejectError
	require.ErrorAs(t, err, &reject)
	require.True(t, reject.Benign())
}
