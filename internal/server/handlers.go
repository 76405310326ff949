package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
	"github.com/bobmcallan/tickermetrics/internal/services/resolver"
)

// handleMetrics handles GET /api/metrics?ticker=&price=&mode=
//
// The default mode computes synchronously on a miss. mode=poll only reads the
// cache: a miss starts a background computation and answers 404 not_computed
// so the client can retry.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	ticker, ok := ValidateTicker(q.Get("ticker"))
	if !ok {
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidTicker, ticker,
			"ticker must be 1-10 characters of A-Z, 0-9, '.' or '-' starting with a letter", "")
		return
	}
	price, ok := ParsePrice(q.Get("price"))
	if !ok {
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidPrice, ticker, "price must be a positive number", "")
		return
	}

	var (
		entry *models.CacheEntry
		err   error
	)
	switch mode := q.Get("mode"); mode {
	case "", "sync":
		entry, err = s.app.Resolver.Resolve(r.Context(), ticker, interfaces.ResolveOptions{ProvidedPrice: price})
	case "poll":
		if price != nil {
			WriteTickerError(w, http.StatusBadRequest, CodeInvalidMode, ticker,
				"price cannot be combined with mode=poll", "a provided price always computes synchronously")
			return
		}
		entry, err = s.app.Resolver.Lookup(r.Context(), ticker)
	default:
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidMode, ticker, fmt.Sprintf("unknown mode %q", mode), "")
		return
	}

	if err != nil {
		s.writeResolveError(w, r, ticker, err)
		return
	}
	writeArtifact(w, entry)
}

// handleMetricsRefresh handles POST /api/metrics/refresh?ticker=&price=
func (s *Server) handleMetricsRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	q := r.URL.Query()
	ticker, ok := ValidateTicker(q.Get("ticker"))
	if !ok {
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidTicker, ticker, "invalid ticker", "")
		return
	}
	price, ok := ParsePrice(q.Get("price"))
	if !ok {
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidPrice, ticker, "price must be a positive number", "")
		return
	}

	entry, err := s.app.Resolver.Refresh(r.Context(), ticker, interfaces.ResolveOptions{ProvidedPrice: price})
	if err != nil {
		s.writeResolveError(w, r, ticker, err)
		return
	}
	writeArtifact(w, entry)
}

type cacheListResponse struct {
	Count   int                   `json:"count"`
	Entries []models.CacheSummary `json:"entries"`
}

// handleCacheList handles GET /api/cache
func (s *Server) handleCacheList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.app.Cache.List(r.Context())
	if err != nil {
		s.logger.WithCorrelation(correlationID(r.Context())).Warn().Err(err).Msg("Cache list failed")
		WriteError(w, http.StatusServiceUnavailable, CodeCacheUnavailable, "cache is unavailable")
		return
	}
	if entries == nil {
		entries = []models.CacheSummary{}
	}
	WriteJSON(w, http.StatusOK, cacheListResponse{Count: len(entries), Entries: entries})
}

// handleCacheDelete handles DELETE /api/cache?ticker=
func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	ticker, ok := ValidateTicker(r.URL.Query().Get("ticker"))
	if !ok {
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidTicker, ticker, "invalid ticker", "")
		return
	}

	if err := s.app.Cache.Delete(r.Context(), ticker); err != nil {
		s.logger.WithCorrelation(correlationID(r.Context())).Warn().Str("ticker", ticker).Err(err).Msg("Cache delete failed")
		WriteTickerError(w, http.StatusServiceUnavailable, CodeCacheUnavailable, ticker, "cache is unavailable", "")
		return
	}

	s.logger.Info().Str("ticker", ticker).Msg("Cached metrics evicted")
	if s.app.Events != nil {
		s.app.Events.Publish(models.MetricsEvent{
			Type:      models.EventMetricsEvicted,
			Ticker:    ticker,
			Timestamp: time.Now().UTC(),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]string{"deleted": ticker})
}

// writeArtifact writes the derived metrics with the cache metadata as headers.
func writeArtifact(w http.ResponseWriter, entry *models.CacheEntry) {
	w.Header().Set("X-Metrics-Computed-At", entry.ComputedAt.UTC().Format(time.RFC3339))
	w.Header().Set("X-Metrics-Method", entry.MethodTag)
	WriteJSON(w, http.StatusOK, entry.Artifact)
}

func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, ticker string, err error) {
	var failed *resolver.ComputationFailed
	switch {
	case errors.Is(err, resolver.ErrNotComputedYet):
		WriteTickerError(w, http.StatusNotFound, CodeNotComputed, ticker,
			fmt.Sprintf("metrics for %s not computed yet", ticker),
			"computation started; retry shortly")
	case errors.Is(err, resolver.ErrInvalidTicker):
		WriteTickerError(w, http.StatusBadRequest, CodeInvalidTicker, ticker, "invalid ticker", "")
	case errors.As(err, &failed):
		s.logger.WithCorrelation(correlationID(r.Context())).Error().Str("ticker", ticker).Err(err).Msg("Metrics computation failed")
		WriteTickerError(w, http.StatusInternalServerError, CodeComputationFailed, ticker,
			fmt.Sprintf("failed to compute metrics for %s", ticker), failed.Err.Error())
	default:
		s.logger.WithCorrelation(correlationID(r.Context())).Error().Str("ticker", ticker).Err(err).Msg("Unexpected resolver error")
		WriteTickerError(w, http.StatusInternalServerError, CodeInternal, ticker, "internal error", "")
	}
}
