package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nftstake/crypto"
	"nftstake/native/staking"
	"nftstake/observability/eventlog"
)

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := staking.ParsePositionID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var pos *staking.Position
	err = s.cfg.Host.Read(func(e *staking.Engine, _ int64) error {
		var qerr error
		pos, qerr = e.Position(id)
		return qerr
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(pos))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var info *staking.AccountInfo
	err = s.cfg.Host.Read(func(e *staking.Engine, _ int64) error {
		var qerr error
		info, qerr = e.AccountInfo(owner)
		return qerr
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(info))
}

func (s *Server) handlePendingRewards(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var (
		pending uint64
		at      int64
	)
	err = s.cfg.Host.Read(func(e *staking.Engine, now int64) error {
		var qerr error
		at = now
		pending, qerr = e.PendingRewards(owner, now)
		return qerr
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner.String(), "pending": pending, "at": at})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	err := s.cfg.Host.Read(func(e *staking.Engine, _ int64) error {
		gov, err := e.Governance()
		if err != nil {
			return err
		}
		resp = statsResponse{
			TotalStaked:          gov.TotalStaked,
			RewardRate:           gov.RewardRate,
			Paused:               gov.Paused,
			TotalDistributed:     gov.Distribution.TotalDistributed,
			LastDistributionTime: gov.Distribution.LastDistributionTime,
		}
		resp.RewardReserve, err = e.RewardReserve()
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGovernance(w http.ResponseWriter, r *http.Request) {
	var gov *staking.Governance
	err := s.cfg.Host.Read(func(e *staking.Engine, _ int64) error {
		var qerr error
		gov, qerr = e.Governance()
		return qerr
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGovernanceResponse(gov))
}

func (s *Server) handleStateRoot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NotFound", Error: "state root unavailable"})
		return
	}
	var (
		root string
		at   int64
	)
	err := s.cfg.Host.Read(func(_ *staking.Engine, now int64) error {
		hash, err := s.cfg.Store.StateRoot()
		if err != nil {
			return err
		}
		root, at = hash.Hex(), now
		return nil
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"root": root, "at": at})
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var changes []*staking.PendingChange
	err := s.cfg.Host.Read(func(e *staking.Engine, _ int64) error {
		var qerr error
		changes, qerr = e.PendingChanges()
		return qerr
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if changes == nil {
		changes = []*staking.PendingChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": changes})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	tag := staking.ChangeTag(chi.URLParam(r, "tag"))
	var change *staking.PendingChange
	err := s.cfg.Host.Read(func(e *staking.Engine, _ int64) error {
		var qerr error
		change, qerr = e.PendingChange(tag)
		return qerr
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// handleEventHistory serves archived events filtered by type, owner,
// position and a since timestamp.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NotFound", Error: "event archive disabled"})
		return
	}
	q := r.URL.Query()
	filter := eventlog.Filter{Type: q.Get("type")}
	if raw := q.Get("position"); raw != "" {
		id, err := staking.ParsePositionID(raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		filter.PositionID = id.Hex()
	}
	if raw := q.Get("owner"); raw != "" {
		owner, err := crypto.ParseAddress(raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		filter.Owner = owner.String()
	}
	if raw := q.Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, strconv.ErrSyntax)
			return
		}
		filter.Limit = limit
	}
	entries, err := s.cfg.Archive.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("event query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "Internal", Error: "event query failed"})
		return
	}
	out := make([]eventResponse, 0, len(entries))
	for i := range entries {
		rec, err := entries[i].Record()
		if err != nil {
			s.logger.Warn("skipping undecodable event", "error", err)
			continue
		}
		out = append(out, eventResponse{ID: entries[i].EventID.String(), Type: rec.Type, Time: rec.Time, Attributes: rec.Attributes})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
