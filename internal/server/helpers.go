package server

import (
	"encoding/json"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Error codes used in the envelope's error field
const (
	CodeInvalidTicker     = "invalid_ticker"
	CodeInvalidPrice      = "invalid_price"
	CodeInvalidMode       = "invalid_mode"
	CodeNotComputed       = "not_computed"
	CodeComputationFailed = "computation_failed"
	CodeCacheUnavailable  = "cache_unavailable"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal_error"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Ticker  string `json:"ticker,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: code, Message: message})
}

// WriteTickerError writes a JSON error envelope that names the ticker involved.
func WriteTickerError(w http.ResponseWriter, statusCode int, code, ticker, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
		Ticker:  ticker,
	})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
	return false
}

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// ValidateTicker trims and upper-cases the ticker and reports whether it is
// 1-10 characters of A-Z, 0-9, '.' or '-' starting with a letter.
func ValidateTicker(raw string) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	return ticker, tickerPattern.MatchString(ticker)
}

// ParsePrice reads the optional price parameter. An absent parameter gives
// (nil, true); anything that is not a finite positive number gives (nil, false).
func ParsePrice(raw string) (*float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil, false
	}
	return &v, true
}
