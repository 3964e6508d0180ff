// Package rpc serves the node's HTTP JSON API.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/core/types"
	"github.com/chronodrachma/elastic/pkg/journal"
	"github.com/chronodrachma/elastic/pkg/node"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

const (
	maxBodyBytes      = 64 << 10
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Config configures a Server. Journal and Metrics are optional.
type Config struct {
	Network  string
	Decimals uint8
	Journal  journal.Recorder
	Metrics  http.Handler
	Log      *zap.Logger
}

type Server struct {
	node     *node.Node
	network  string
	decimals uint8
	journal  journal.Recorder
	metrics  http.Handler
	log      *zap.Logger
}

func NewServer(n *node.Node, cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Server{
		node:     n,
		network:  cfg.Network,
		decimals: cfg.Decimals,
		journal:  cfg.Journal,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
	}
}

// Handler returns the API routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /supply", s.handleSupply)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("GET /allowance", s.handleAllowance)
	mux.HandleFunc("GET /nonce", s.handleNonce)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /op", s.handleOp)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.withRequestID(mux)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type ctxKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		s.log.Debug("rpc request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

type statusResponse struct {
	Network             string `json:"network"`
	TotalSupply         string `json:"total_supply"`
	TotalSupplyDisplay  string `json:"total_supply_display"`
	TargetPrice         string `json:"target_price"`
	CurrentPrice        string `json:"current_price"`
	LastRebase          string `json:"last_rebase"`
	NextRebase          string `json:"next_rebase"`
	RebaseInterval      uint64 `json:"rebase_interval"`
	MaxRebasePercentage uint8  `json:"max_rebase_percentage"`
	Holders             int    `json:"holders"`
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.node.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Network:             s.network,
		TotalSupply:         st.TotalSupply.Dec(),
		TotalSupplyDisplay:  types.FormatAmount(st.TotalSupply, s.decimals),
		TargetPrice:         st.TargetPrice.Dec(),
		CurrentPrice:        st.CurrentPrice.Dec(),
		LastRebase:          st.LastRebase.UTC().Format(time.RFC3339),
		NextRebase:          st.NextRebase.UTC().Format(time.RFC3339),
		RebaseInterval:      st.RebaseInterval,
		MaxRebasePercentage: st.MaxRebasePercentage,
		Holders:             st.Holders,
	})
}

// GET /supply
func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply := s.node.TotalSupply()
	writeJSON(w, http.StatusOK, map[string]string{
		"total_supply": supply.Dec(),
		"display":      types.FormatAmount(supply, s.decimals),
	})
}

// GET /balance?addr=<hex>
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "addr")
	if !ok {
		return
	}
	bal := s.node.BalanceOf(addr)
	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.Hex(),
		"balance": bal.Dec(),
		"display": types.FormatAmount(bal, s.decimals),
	})
}

// GET /allowance?owner=<hex>&spender=<hex>
func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := s.addressParam(w, r, "spender")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": s.node.Allowance(owner, spender).Dec(),
	})
}

// GET /nonce?addr=<hex>
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "addr")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"nonce":   s.node.Nonce(addr),
	})
}

// GET /events?limit=<n>
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, r, http.StatusNotFound, errors.New("event journal disabled"))
		return
	}
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(n, maxEventLimit)
	}

	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.log.Error("read journal", zap.String("request_id", requestID(r)), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, errors.New("journal unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type opResponse struct {
	Status      string `json:"status"`
	ID          string `json:"id"`
	Nonce       uint64 `json:"nonce"`
	TotalSupply string `json:"total_supply"`
}

// POST /op
// Body: OpRequest JSON.
func (s *Server) handleOp(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("failed to read body"))
		return
	}

	var req OpRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	op, err := req.Op()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rcpt, err := s.node.Submit(op)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	s.log.Info("op applied",
		zap.String("request_id", requestID(r)),
		zap.Stringer("kind", rcpt.Kind),
		zap.String("id", rcpt.ID.Hex()),
		zap.String("caller", rcpt.Caller.Hex()))
	writeJSON(w, http.StatusOK, opResponse{
		Status:      "ok",
		ID:          rcpt.ID.Hex(),
		Nonce:       rcpt.Nonce,
		TotalSupply: rcpt.TotalSupply.Dec(),
	})
}

// statusFor maps ledger and node errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, node.ErrInvalidNonce):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrRebaseTooEarly):
		return http.StatusTooEarly
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidParameter),
		errors.Is(err, ledger.ErrInvalidRecipient),
		errors.Is(err, ledger.ErrArithmeticOverflow),
		errors.Is(err, ledger.ErrArithmeticUnderflow),
		errors.Is(err, node.ErrIDMismatch),
		errors.Is(err, node.ErrUnknownOp):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request, name string) (types.Address, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing %s parameter", name))
		return types.Address{}, false
	}
	addr, err := types.AddressFromHex(v)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", name, err))
		return types.Address{}, false
	}
	return addr, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": requestID(r),
	})
}
