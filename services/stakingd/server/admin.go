package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nftstake/crypto"
	"nftstake/gateway/middleware"
	"nftstake/native/staking"
)

func (s *Server) decodeAddress(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return crypto.Address{}, false
	}
	addr, err := crypto.ParseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, err)
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	owner, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Host.Initialize(caller, owner); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.String()})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	next, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Host.TransferOwnership(caller, next); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": next.String()})
}

func (s *Server) handleSetRewardRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cfg.Host.SetRewardRate(caller, req.Rate); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"rewardRate": req.Rate})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Host.EmergencyPause(caller); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Host.EmergencyUnpause(caller); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := staking.ParsePositionID(req.ID)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	pos, err := s.cfg.Host.EmergencyWithdraw(caller, id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(pos))
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req proposalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tag, err := staking.ParseChangeTag(req.Tag)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	change, err := s.cfg.Host.ProposeAdminChange(caller, tag, req.Value)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	tag, err := staking.ParseChangeTag(chi.URLParam(r, "tag"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	change, err := s.cfg.Host.ExecuteAdminChange(caller, tag)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Host.CheckInvariants(); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleOperatorPauses(w http.ResponseWriter, r *http.Request) {
	modules := []string{}
	if s.cfg.Pauses != nil {
		modules = s.cfg.Pauses.Modules()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"paused": modules})
}

func (s *Server) handleSetOperatorPause(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pauses == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Code: "Unsupported", Error: "operator pauses not configured"})
		return
	}
	var req operatorPauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	module := strings.ToLower(strings.TrimSpace(req.Module))
	if module == "" {
		module = staking.ModuleName
	}
	s.cfg.Pauses.Set(module, req.Paused)
	caller, _ := middleware.CallerFromContext(r.Context())
	s.logger.Warn("operator pause toggled", "module", module, "paused", req.Paused, "caller", caller.String())
	writeJSON(w, http.StatusOK, map[string][]string{"paused": s.cfg.Pauses.Modules()})
}
