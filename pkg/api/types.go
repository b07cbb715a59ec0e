package api

import "github.com/pairbook/pairbook/pkg/book"

// Order ids are uint64; they cross the wire as decimal strings to stay
// clear of JSON number precision.

type SubmitOrderRequest struct {
	Address  string `json:"address"`
	Side     string `json:"side"` // "bid" or "ask"
	Price    uint64 `json:"price"`
	Size     uint64 `json:"size"`
	Callable string `json:"callable,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	RemainingSize uint64 `json:"remaining_size"`
	Final         bool   `json:"final"`
}

type CompleteSettlementRequest struct {
	TakerID string `json:"taker_id"`
	MakerID string `json:"maker_id"`
	Success bool   `json:"success"`
}

type DepositRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"` // "base" or "quote"
	Amount  uint64 `json:"amount"`
}

type BalancesResponse struct {
	Address string `json:"address"`
	Base    uint64 `json:"base"`
	Quote   uint64 `json:"quote"`
}

type BookSnapshot struct {
	Bids      []book.PriceLevel `json:"bids"`
	Asks      []book.PriceLevel `json:"asks"`
	Timestamp int64             `json:"timestamp"`
}

type TradeEvent struct {
	Type      string `json:"type"` // "trade"
	TradeID   string `json:"trade_id"`
	TakerID   string `json:"taker_id"`
	MakerID   string `json:"maker_id"`
	Side      string `json:"side"`
	Price     uint64 `json:"price"`
	Quantity  uint64 `json:"quantity"`
	Settled   bool   `json:"settled"`
	Timestamp int64  `json:"timestamp"`
}

type FinalizationEvent struct {
	Type          string `json:"type"` // "finalization"
	TakerID       string `json:"taker_id"`
	RemainingSize uint64 `json:"remaining_size"`
	Status        string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
