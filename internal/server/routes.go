package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"

	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ingestion"
	"CfdLedger/internal/query"
)

const maxCommandBytes = 1 << 20

// CommandResponse is returned for a submitted command.
type CommandResponse struct {
	Sequence  int64  `json:"sequence,omitempty"`
	Height    uint64 `json:"height"`
	StateHash string `json:"state_hash,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Stale     bool   `json:"stale,omitempty"`
	Output    any    `json:"output,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Fault   string `json:"fault,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type queryFunc func(r *http.Request, p map[string]string) (any, error)

func (s *GRPCServer) registerRoutes(mux *runtime.ServeMux) error {
	qs := s.deps.Query
	routes := []struct {
		method, path string
		handler      runtime.HandlerFunc
	}{
		{"POST", "/v1/commands/{command}", s.submitCommand},
		{"GET", "/v1/commands", s.listCommands},
		{"POST", "/v1/admin/snapshot", s.takeSnapshot},

		{"GET", "/v1/market", s.query("market", func(*http.Request, map[string]string) (any, error) {
			return qs.GetMarket()
		})},
		{"GET", "/v1/heatmap", s.query("heatmap", func(*http.Request, map[string]string) (any, error) {
			return qs.GetHeatmap()
		})},
		{"GET", "/v1/positions/{owner}", s.query("position", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetPosition(p["owner"])
		})},
		{"GET", "/v1/pool", s.query("pool", func(*http.Request, map[string]string) (any, error) {
			return qs.GetPool()
		})},
		{"GET", "/v1/lp/{owner}", s.query("lp", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetLPPosition(p["owner"])
		})},
		{"GET", "/v1/slot-pools/{creator}/{id}", s.query("slot_pool", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetSlotPool(p["creator"], p["id"])
		})},
		{"GET", "/v1/feeds/{class}/{symbol}", s.query("feed", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetFeed(p["class"], p["symbol"])
		})},
		{"GET", "/v1/spot/{class}/{symbol}", s.query("spot", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetSpotPrice(p["class"], p["symbol"])
		})},
		{"GET", "/v1/slots/{id}", s.query("slot", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetSlot(p["id"])
		})},
		{"GET", "/v1/bets/{owner}/{id}", s.query("bet", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetBet(p["owner"], p["id"])
		})},
		{"GET", "/v1/governance", s.query("governance", func(*http.Request, map[string]string) (any, error) {
			return qs.GetGovernance()
		})},
		{"GET", "/v1/proposals/{id}", s.query("proposal", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetProposal(p["id"])
		})},
		{"GET", "/v1/stakes/{owner}", s.query("stake", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetStake(p["owner"])
		})},
		{"GET", "/v1/balances/{owner}", s.query("balances", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetBalances(p["owner"])
		})},
		{"GET", "/v1/balances/{owner}/{asset}", s.query("balance", func(_ *http.Request, p map[string]string) (any, error) {
			return qs.GetBalance(p["owner"], p["asset"])
		})},
		{"GET", "/v1/state", s.query("state", func(*http.Request, map[string]string) (any, error) {
			return qs.GetState(), nil
		})},
		{"GET", "/v1/journals/{owner}", s.query("journals", func(r *http.Request, p map[string]string) (any, error) {
			limit, before, err := pageParams(r)
			if err != nil {
				return nil, err
			}
			return qs.Journals(r.Context(), p["owner"], limit, before)
		})},
		{"GET", "/v1/integrity", s.query("integrity", func(r *http.Request, _ map[string]string) (any, error) {
			return qs.VerifyIntegrity(r.Context())
		})},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, rt.handler); err != nil {
			return err
		}
	}
	return nil
}

// query wraps a query with metrics and JSON rendering.
func (s *GRPCServer) query(endpoint string, fn queryFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p map[string]string) {
		start := time.Now()
		resp, err := fn(r, p)
		status := "ok"
		if err != nil {
			status = "error"
			if s.deps.Metrics != nil {
				s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, errorCode(err).String()).Inc()
			}
			writeError(w, err)
		} else {
			writeJSON(w, http.StatusOK, resp)
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
			s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

func (s *GRPCServer) submitCommand(w http.ResponseWriter, r *http.Request, p map[string]string) {
	if !s.limiter.Allow() {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RateLimited.WithLabelValues("commands").Inc()
		}
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Code:    codes.ResourceExhausted.String(),
			Message: "command rate limit exceeded",
		})
		return
	}

	t := event.CommandType(p["command"])
	if !event.Known(t) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Code:    codes.NotFound.String(),
			Message: "unknown command type " + strconv.Quote(string(t)),
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    codes.InvalidArgument.String(),
			Message: err.Error(),
		})
		return
	}

	res, _, err := s.deps.Ingest.Ingest(r.Context(), "http", t, body)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := CommandResponse{
		Sequence:  res.Sequence,
		Height:    res.Height,
		Duplicate: res.Duplicate,
		Stale:     res.Stale,
		Output:    res.Output,
	}
	if res.Sequence > 0 {
		resp.StateHash = hex.EncodeToString(res.StateHash[:])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) listCommands(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": event.Types()})
}

func (s *GRPCServer) takeSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.deps.Snapshots == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Code:    codes.Unavailable.String(),
			Message: "snapshots not configured",
		})
		return
	}
	seq, err := s.deps.Snapshots.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sequence": seq})
}

func pageParams(r *http.Request) (limit int, before int64, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fault.New(fault.InvalidParameter, "limit %q", v)
		}
	}
	if v := q.Get("before"); v != "" {
		if before, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, 0, fault.New(fault.InvalidParameter, "before %q", v)
		}
	}
	return limit, before, nil
}

// errorCode maps an error to the status code transports report.
func errorCode(err error) codes.Code {
	switch {
	case errors.Is(err, ingestion.ErrInvalidCommand):
		return codes.InvalidArgument
	case errors.Is(err, query.ErrNoEventLog):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return fault.GRPCCode(err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	body := ErrorResponse{Code: code.String(), Message: err.Error()}
	if fc, ok := fault.CodeOf(err); ok {
		body.Fault = fc.String()
		body.Kind = fc.Kind().String()
	}
	writeJSON(w, runtime.HTTPStatusFromCode(code), body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
