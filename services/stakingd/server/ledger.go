package server

import (
	"net/http"

	"nftstake/native/staking"
	"nftstake/services/stakingd/host"
)

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
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
	pos, err := s.cfg.Host.Stake(caller, host.Attached{Asset: req.AttachedAsset, Amount: req.AttachedAmount}, id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(pos))
}

func (s *Server) handleBatchStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	positions, err := s.cfg.Host.BatchStake(caller, host.Attached{Asset: req.AttachedAsset, Amount: req.AttachedAmount}, ids)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": newPositionResponses(positions)})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
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
	res, err := s.cfg.Host.Unstake(caller, id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUnstakeResponse(res))
}

func (s *Server) handleBatchUnstake(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	results, err := s.cfg.Host.BatchUnstake(caller, ids)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := make([]unstakeResponse, 0, len(results))
	for _, res := range results {
		out = append(out, newUnstakeResponse(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	amount, err := s.cfg.Host.ClaimRewards(caller)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reserve, err := s.cfg.Host.DepositRewards(caller, host.Attached{Asset: req.AttachedAsset, Amount: req.AttachedAmount})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"reserve": reserve})
}
