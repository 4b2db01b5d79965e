package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratio-band-alerts/internal/fetcher"
	"ratio-band-alerts/internal/monitor"
	"ratio-band-alerts/internal/prefs"
)

// Server exposes the dashboard-facing API: preference read/update, live
// prices, and an external single-cycle trigger.
type Server struct {
	prefs      prefs.Store
	fetcher    fetcher.PriceFetcher
	monitor    *monitor.Monitor
	logger     zerolog.Logger
	baseAsset  string
	quoteAsset string
}

// New builds the API server.
func New(store prefs.Store, pf fetcher.PriceFetcher, mon *monitor.Monitor, baseAsset, quoteAsset string, logger zerolog.Logger) *Server {
	return &Server{
		prefs:      store,
		fetcher:    pf,
		monitor:    mon,
		logger:     logger.With().Str("component", "httpserver").Logger(),
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/preferences", s.handlePreferences)
	mux.HandleFunc("/api/prices", s.handlePrices)
	mux.HandleFunc("/api/check", s.handleCheck)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetPreferences(w, r)
	case http.MethodPatch, http.MethodPut:
		s.handleUpdatePreferences(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	record, err := s.prefs.Read(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("read preferences failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("could not read preferences"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// patchRequest is the partial document accepted from the dashboard. The
// lastNotifiedState field is owned by the monitor and not editable here.
type patchRequest struct {
	Email                *string `json:"email"`
	MinRange             *string `json:"minRange"`
	MaxRange             *string `json:"maxRange"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req patchRequest
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body: "+err.Error()))
		return
	}

	patch := prefs.Patch{
		Email:                req.Email,
		MinRange:             req.MinRange,
		MaxRange:             req.MaxRange,
		NotificationsEnabled: req.NotificationsEnabled,
	}

	record, err := s.prefs.Update(r.Context(), patch)
	if err != nil {
		var vErr *prefs.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, errorBody(vErr.Error()))
			return
		}
		s.logger.Error().Err(err).Msg("update preferences failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("could not update preferences"))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	type result struct {
		asset string
		price decimal.Decimal
		err   error
	}

	results := make(chan result, 2)
	for _, asset := range []string{s.baseAsset, s.quoteAsset} {
		go func(a string) {
			price, err := s.fetcher.FetchPrice(ctx, a)
			results <- result{asset: a, price: price, err: err}
		}(asset)
	}

	prices := make(map[string]decimal.Decimal, 2)
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			s.logger.Warn().Err(res.err).Str("asset", res.asset).Msg("price fetch failed")
			writeJSON(w, http.StatusBadGateway, errorBody("failed to fetch prices: "+res.err.Error()))
			return
		}
		prices[res.asset] = res.price
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"walPrice": prices[s.baseAsset],
		"suiPrice": prices[s.quoteAsset],
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	outcome, err := s.monitor.RunCycle(r.Context(), time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"outcome": outcome,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
