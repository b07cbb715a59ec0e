package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/params"
	"github.com/pairbook/pairbook/pkg/book"
	"github.com/pairbook/pairbook/pkg/engine"
	"github.com/pairbook/pairbook/pkg/ledger"
	"github.com/pairbook/pairbook/pkg/settle"
)

// ErrUnauthorized rejects completion notifications from callers that
// are not the trusted settlement channel.
var ErrUnauthorized = errors.New("api: caller is not the trusted completion channel")

// Server is the REST and websocket surface of the engine: order
// submission, deposits from the asset bridge, settlement completions
// from the trusted settlor channel, and book/balance queries.
type Server struct {
	eng    *engine.Engine
	queue  *settle.Queue
	cfg    params.Config
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(eng *engine.Engine, queue *settle.Queue, cfg params.Config, log *zap.SugaredLogger) *Server {
	s := &Server{
		eng:    eng,
		queue:  queue,
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/settlements/complete", s.handleCompleteSettlement).Methods("POST")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routing stack with CORS applied; exported for
// tests.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the websocket hub and serves HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Hub exposes the websocket hub so the node can feed engine events into
// broadcasts.
func (s *Server) Hub() *Hub {
	return s.hub
}

// BroadcastTrade pushes a fill to subscribers of the trades channel.
func (s *Server) BroadcastTrade(t engine.Trade) {
	s.hub.BroadcastToChannel("trades", TradeEvent{
		Type:      "trade",
		TradeID:   t.ID,
		TakerID:   formatID(t.TakerID),
		MakerID:   formatID(t.MakerID),
		Side:      t.TakerSide.String(),
		Price:     t.Price,
		Quantity:  t.Quantity,
		Settled:   t.Settled,
		Timestamp: t.Timestamp,
	})
}

// BroadcastFinalization pushes a terminal report to subscribers of the
// finalizations channel.
func (s *Server) BroadcastFinalization(r engine.Report) {
	s.hub.BroadcastToChannel("finalizations", FinalizationEvent{
		Type:          "finalization",
		TakerID:       formatID(r.TakerID),
		RemainingSize: r.RemainingSize,
		Status:        r.Status,
	})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", "expected bid or ask")
		return
	}
	if req.Size == 0 {
		respondError(w, http.StatusBadRequest, "invalid size", "size must be positive")
		return
	}

	o := book.NewLimitOrder(common.HexToAddress(req.Address), req.Callable, side, req.Price, req.Size)

	rep, err := s.eng.Submit(r.Context(), o)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "order rejected", err.Error())
		return
	}

	respondJSON(w, SubmitOrderResponse{
		OrderID:       formatID(o.ID),
		Status:        rep.Status,
		RemainingSize: rep.RemainingSize,
		Final:         rep.Final,
	})
}

// handleCompleteSettlement is the inbound trusted completion channel.
// The bearer token check is mandatory: an unauthenticated caller must
// not reach the engine at all.
func (s *Server) handleCompleteSettlement(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.log.Warnw("completion_unauthorized", "remote", r.RemoteAddr)
		respondError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized.Error())
		return
	}

	var req CompleteSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	takerID, err1 := parseID(req.TakerID)
	makerID, err2 := parseID(req.MakerID)
	if err1 != nil || err2 != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", "")
		return
	}

	s.queue.Push(settle.Completion{TakerID: takerID, MakerID: makerID, Success: req.Success})
	respondJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}
	asset, err := ledger.ParseAsset(req.Asset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	if req.Amount == 0 {
		respondError(w, http.StatusBadRequest, "invalid amount", "amount must be positive")
		return
	}

	if err := s.eng.Ledger().Deposit(common.HexToAddress(req.Address), req.Amount, asset); err != nil {
		respondError(w, http.StatusInternalServerError, "deposit failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "credited"})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return
	}
	addr := common.HexToAddress(addressStr)

	respondJSON(w, BalancesResponse{
		Address: addr.Hex(),
		Base:    s.eng.Ledger().Balance(addr, ledger.AssetBase),
		Quote:   s.eng.Ledger().Balance(addr, ledger.AssetQuote),
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, BookSnapshot{
		Bids:      s.eng.BidLevels(),
		Asks:      s.eng.AskLevels(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// authorized checks the bearer token against the configured settlement
// channel token.
func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == s.cfg.Settlement.AuthToken
}

func parseSide(s string) (book.Side, bool) {
	switch s {
	case "bid":
		return book.Bid, true
	case "ask":
		return book.Ask, true
	}
	return book.Bid, false
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errStr string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errStr,
		Message: message,
	})
}
