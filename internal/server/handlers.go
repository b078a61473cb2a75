package server

import (
	"TroveLedger/internal/projection"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// newGatewayMux builds the HTTP/JSON route table. Responses carry
// as_of_sequence so clients can reason about freshness.
func (s *GRPCServer) newGatewayMux() (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/troves/{owner}/{denom}", s.handleGetTrove},
		{"GET", "/v1/denoms/{denom}/troves", s.handleListTroves},
		{"GET", "/v1/stakes/{owner}", s.handleGetStake},
		{"GET", "/v1/protocol/stats", s.handleProtocolStats},
		{"GET", "/v1/balances/{owner}/{asset}", s.handleGetBalance},
		{"GET", "/v1/liquidations", s.handleLiquidationHistory},
		{"GET", "/v1/journals/{owner}", s.handleJournalHistory},
		{"POST", "/v1/admin/prices", s.handleInjectPrice},
		{"POST", "/v1/admin/collateral-params", s.handleInjectCollateralParams},
		{"POST", "/v1/admin/liquidate", s.handleInjectLiquidation},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/admin/eventlog", s.handleEventLogInfo},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	return mux, nil
}

// --- Query handlers ---

func (s *GRPCServer) handleGetTrove(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("get_trove", time.Now())

	owner, err := uuid.Parse(pathParams["owner"])
	if err != nil {
		s.writeError(w, "get_trove", http.StatusBadRequest, fmt.Errorf("invalid owner: %w", err))
		return
	}

	resp, err := s.deps.QueryService.GetTrove(r.Context(), owner, pathParams["denom"])
	if err != nil {
		s.writeError(w, "get_trove", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "get_trove", resp)
}

func (s *GRPCServer) handleListTroves(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("list_troves", time.Now())

	limit := intQuery(r, "limit", 100)
	resp, err := s.deps.QueryService.ListTroves(r.Context(), pathParams["denom"], limit)
	if err != nil {
		s.writeError(w, "list_troves", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "list_troves", map[string]interface{}{"troves": resp})
}

func (s *GRPCServer) handleGetStake(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("get_stake", time.Now())

	owner, err := uuid.Parse(pathParams["owner"])
	if err != nil {
		s.writeError(w, "get_stake", http.StatusBadRequest, fmt.Errorf("invalid owner: %w", err))
		return
	}

	resp, err := s.deps.QueryService.GetStake(r.Context(), owner)
	if err != nil {
		s.writeError(w, "get_stake", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "get_stake", resp)
}

func (s *GRPCServer) handleProtocolStats(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("protocol_stats", time.Now())

	resp, err := s.deps.QueryService.GetProtocolStats(r.Context())
	if err != nil {
		s.writeError(w, "protocol_stats", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "protocol_stats", resp)
}

func (s *GRPCServer) handleGetBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("get_balance", time.Now())

	owner, err := uuid.Parse(pathParams["owner"])
	if err != nil {
		s.writeError(w, "get_balance", http.StatusBadRequest, fmt.Errorf("invalid owner: %w", err))
		return
	}

	resp, err := s.deps.QueryService.GetBalance(r.Context(), owner, pathParams["asset"])
	if err != nil {
		s.writeError(w, "get_balance", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "get_balance", resp)
}

func (s *GRPCServer) handleLiquidationHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("liquidation_history", time.Now())

	var owner *uuid.UUID
	if v := r.URL.Query().Get("owner"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			s.writeError(w, "liquidation_history", http.StatusBadRequest, fmt.Errorf("invalid owner: %w", err))
			return
		}
		owner = &parsed
	}

	var denom *string
	if v := r.URL.Query().Get("denom"); v != "" {
		denom = &v
	}

	var afterSeq *int64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, "liquidation_history", http.StatusBadRequest, fmt.Errorf("invalid after_sequence: %w", err))
			return
		}
		afterSeq = &seq
	}

	limit := intQuery(r, "limit", 50)
	resp, err := s.deps.QueryService.GetLiquidationHistory(r.Context(), owner, denom, limit, afterSeq)
	if err != nil {
		s.writeError(w, "liquidation_history", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "liquidation_history", map[string]interface{}{"liquidations": resp})
}

func (s *GRPCServer) handleJournalHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("journal_history", time.Now())

	owner, err := uuid.Parse(pathParams["owner"])
	if err != nil {
		s.writeError(w, "journal_history", http.StatusBadRequest, fmt.Errorf("invalid owner: %w", err))
		return
	}

	var afterSeq *int64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, "journal_history", http.StatusBadRequest, fmt.Errorf("invalid after_sequence: %w", err))
			return
		}
		afterSeq = &seq
	}

	limit := intQuery(r, "limit", 100)
	resp, err := s.deps.QueryService.GetJournalHistory(r.Context(), owner, limit, afterSeq)
	if err != nil {
		s.writeError(w, "journal_history", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "journal_history", map[string]interface{}{"journals": resp})
}

// --- Admin handlers ---

type injectPriceRequest struct {
	Denom           string `json:"denom"`
	Price           uint64 `json:"price"`
	DecimalExponent uint8  `json:"decimal_exponent"`
	PriceSequence   int64  `json:"price_sequence"`
}

func (s *GRPCServer) handleInjectPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("inject_price", time.Now())

	var req injectPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "inject_price", http.StatusBadRequest, err)
		return
	}

	if err := s.deps.IngestService.InjectPrice(r.Context(), req.Denom, req.Price, req.DecimalExponent, req.PriceSequence); err != nil {
		s.writeError(w, "inject_price", http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, "inject_price", map[string]bool{"accepted": true})
}

type injectCollateralParamsRequest struct {
	Denom           string `json:"denom"`
	Decimals        uint8  `json:"decimals"`
	MinRatioPercent uint64 `json:"min_ratio_percent"`
	FeePercent      uint64 `json:"fee_percent"`
}

func (s *GRPCServer) handleInjectCollateralParams(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("inject_collateral_params", time.Now())

	var req injectCollateralParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "inject_collateral_params", http.StatusBadRequest, err)
		return
	}

	if err := s.deps.IngestService.InjectCollateralParams(r.Context(), req.Denom, req.Decimals, req.MinRatioPercent, req.FeePercent); err != nil {
		s.writeError(w, "inject_collateral_params", http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, "inject_collateral_params", map[string]bool{"accepted": true})
}

type injectLiquidationRequest struct {
	Caller string   `json:"caller"`
	Denom  string   `json:"denom"`
	Owners []string `json:"owners"`
}

func (s *GRPCServer) handleInjectLiquidation(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("inject_liquidation", time.Now())

	var req injectLiquidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "inject_liquidation", http.StatusBadRequest, err)
		return
	}

	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		s.writeError(w, "inject_liquidation", http.StatusBadRequest, fmt.Errorf("invalid caller: %w", err))
		return
	}

	owners := make([]uuid.UUID, 0, len(req.Owners))
	for i, o := range req.Owners {
		owner, err := uuid.Parse(o)
		if err != nil {
			s.writeError(w, "inject_liquidation", http.StatusBadRequest, fmt.Errorf("invalid owners[%d]: %w", i, err))
			return
		}
		owners = append(owners, owner)
	}

	if err := s.deps.IngestService.InjectLiquidation(r.Context(), caller, req.Denom, owners); err != nil {
		s.writeError(w, "inject_liquidation", http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, "inject_liquidation", map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("rebuild_projections", time.Now())

	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		s.writeError(w, "rebuild_projections", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "rebuild_projections", map[string]bool{"started": true})
}

func (s *GRPCServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("verify_integrity", time.Now())

	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, "verify_integrity", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "verify_integrity", report)
}

func (s *GRPCServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	defer s.observe("eventlog_info", time.Now())

	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		s.writeError(w, "eventlog_info", http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, "eventlog_info", map[string]interface{}{
		"last_sequence": latestSeq,
		"uptime":        time.Since(s.deps.StartTime).String(),
	})
}

// --- helpers ---

func (s *GRPCServer) writeJSON(w http.ResponseWriter, endpoint string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err == nil && s.deps.Metrics != nil {
		s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	}
}

func (s *GRPCServer) writeError(w http.ResponseWriter, endpoint string, code int, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
		s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *GRPCServer) observe(endpoint string, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func intQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}
