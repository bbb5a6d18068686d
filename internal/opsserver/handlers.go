package opsserver

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/DataStream-Network/dat_ledger/internal/ledger"
)

const maxFactPage = 1000

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the node has sealed its first block, which
// means replay finished and the sealer is running.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.node.Height() == 0 {
		writeError(w, http.StatusServiceUnavailable, "node has not sealed a block yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.led.Stats()
	status := map[string]interface{}{
		"block_height":  s.node.Height(),
		"journal_seq":   s.journal.LastSeq(),
		"total_assets":  stats.TotalAssets,
		"total_queries": stats.TotalQueries,
		"total_volume":  stats.TotalVolume,
		"uptime":        time.Since(s.startedAt).String(),
		"goroutines":    runtime.NumGoroutine(),
	}
	if info, err := host.InfoWithContext(r.Context()); err == nil {
		status["host_uptime_sec"] = info.Uptime
		status["os"] = info.OS
		status["platform"] = info.Platform
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		status["mem_used_percent"] = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, status)
}

// handleFacts serves a backfill page of the journal for mirrors catching up.
func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	from := uint64(1)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be a sequence number")
			return
		}
		from = parsed
	}
	limit := maxFactPage
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	facts, err := s.journal.ReadFrom(r.Context(), from, limit)
	if err != nil {
		s.log.WithError(err).Error("fact backfill read failed")
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"facts":    facts,
		"last_seq": s.journal.LastSeq(),
	})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "asset id must be numeric")
		return
	}
	rec, err := s.led.Get(id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           rec.ID,
		"creator":      rec.Creator,
		"contentRef":   rec.ContentRef,
		"tokenUri":     rec.TokenURI,
		"dataClass":    rec.DataClass,
		"dataValue":    rec.DataValue,
		"queryPrice":   rec.QueryPrice,
		"totalQueries": rec.TotalQueries,
		"totalEarned":  rec.TotalEarned,
		"active":       rec.Active,
		"createdAt":    rec.CreatedAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.led.Stats()
	writeJSON(w, http.StatusOK, map[string]uint64{
		"totalAssets":  stats.TotalAssets,
		"totalQueries": stats.TotalQueries,
		"totalVolume":  stats.TotalVolume,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": s.led.BalanceOf(account),
	})
}
