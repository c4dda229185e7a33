package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"nftstake/crypto"
	"nftstake/gateway/middleware"
	"nftstake/native/staking"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

var statusByCode = map[string]int{
	"NotOwner":              http.StatusForbidden,
	"NotStaker":             http.StatusForbidden,
	"ItemNotHeld":           http.StatusForbidden,
	"ContractPaused":        http.StatusServiceUnavailable,
	"ModulePaused":          http.StatusServiceUnavailable,
	"NFTNotFound":           http.StatusNotFound,
	"NoPendingChange":       http.StatusNotFound,
	"InvalidItem":           http.StatusNotFound,
	"ReentrancyDetected":    http.StatusConflict,
	"AlreadyInitialized":    http.StatusConflict,
	"NotInitialized":        http.StatusConflict,
	"PositionExists":        http.StatusConflict,
	"WithdrawalTooFrequent": http.StatusTooManyRequests,
	"InsufficientReserve":   http.StatusConflict,
	"LockPeriodActive":      http.StatusConflict,
	"LockPeriodNotMet":      http.StatusConflict,
	"TimelockActive":        http.StatusConflict,
	"NoRewards":             http.StatusConflict,
	"InvariantViolated":     http.StatusInternalServerError,
	"CounterUnderflow":      http.StatusInternalServerError,
	"Internal":              http.StatusInternalServerError,
}

// statusFor maps a ledger error kind to an HTTP status. Unlisted kinds are
// validation failures.
func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := staking.ErrorCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("ledger call failed", "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BadRequest", Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body required")
		}
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

// callerOf returns the authenticated identity; the auth middleware guarantees
// one on protected routes unless authentication is disabled.
func callerOf(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "Unauthorized", Error: "caller identity required"})
		return crypto.Address{}, false
	}
	return caller, true
}

func parseIDs(raw []string) ([]staking.PositionID, error) {
	ids := make([]staking.PositionID, 0, len(raw))
	for _, value := range raw {
		id, err := staking.ParsePositionID(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
