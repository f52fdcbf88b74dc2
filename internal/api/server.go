package api

import (
	"net/http"
	"time"
)

// NewServer wires the API routes into an http.Server.  Handler timeouts are
// generous because clients use a 60 second timeout of their own.
func NewServer(addr string, a *API) *http.Server {
	mux := http.NewServeMux()

	get := func(h http.HandlerFunc) http.HandlerFunc {
		return ApplyMiddleware(h, LoggingMiddleware, ErrorMiddleware)
	}
	post := func(h http.HandlerFunc) http.HandlerFunc {
		return ApplyMiddleware(h, JSONContentTypeMiddleware, PostOnlyMiddleware, LoggingMiddleware, ErrorMiddleware)
	}

	mux.HandleFunc("/terms", get(a.TermsHTMLHandler))
	mux.HandleFunc("/terms/text", get(a.TermsTextHandler))
	mux.HandleFunc("/api/v1/target", get(a.TargetHandler))
	mux.HandleFunc("/api/v1/mining_report", post(a.MiningReportHandler))
	mux.HandleFunc("/api/v1/replace", post(a.ReplaceHandler))
	mux.HandleFunc("/api/v1/health_check", post(a.HealthCheckHandler))
	mux.HandleFunc("/stats", get(a.StatsHandler))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
