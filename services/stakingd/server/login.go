package server

import (
	"errors"
	"net/http"

	"nftstake/gateway/auth"
)

// handleLogin exchanges a wallet-signed login payload for a bearer token
// whose subject is the recovered address.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Login == nil || len(s.cfg.Tokens.Secret) == 0 {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Code: "Unsupported", Error: "login disabled"})
		return
	}
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := s.cfg.Login.Authenticate(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingField), errors.Is(err, auth.ErrInvalidAddress):
			writeBadRequest(w, err)
		case errors.Is(err, auth.ErrTimestampSkew), errors.Is(err, auth.ErrInvalidSignature), errors.Is(err, auth.ErrNonceReplayed):
			s.logger.Info("login rejected", "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "Unauthorized", Error: err.Error()})
		default:
			s.logger.Error("login failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "Internal", Error: "login failed"})
		}
		return
	}
	token, expires, err := s.cfg.Tokens.Issue(addr, s.cfg.Clock())
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "Internal", Error: "token issue failed"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Address: addr.String(), ExpiresAt: expires.Unix()})
}
