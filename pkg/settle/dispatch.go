// Package settle carries a match from the moment it is produced by the
// matching scan to the moment its outcome is known. Dispatch is
// non-blocking: the request is handed off immediately and the outcome
// arrives later as a Completion on the queue the engine drains.
package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request asks an external settlement target to confirm one match.
type Request struct {
	DeliveryID string `json:"delivery_id"`
	Callable   string `json:"-"` // target URL, not part of the payload
	MakerID    uint64 `json:"maker_id"`
	TakerID    uint64 `json:"taker_id"`
	Quantity   uint64 `json:"quantity"`
	Price      uint64 `json:"price"`
}

// NewRequest builds a Request with a fresh delivery id.
func NewRequest(callable string, makerID, takerID, qty, price uint64) Request {
	return Request{
		DeliveryID: uuid.New().String(),
		Callable:   callable,
		MakerID:    makerID,
		TakerID:    takerID,
		Quantity:   qty,
		Price:      price,
	}
}

// Completion is the settlement target's verdict on one dispatched
// request, delivered out of band through the trusted completion channel.
type Completion struct {
	TakerID uint64
	MakerID uint64
	Success bool
}

// Dispatcher sends settlement requests to their targets. Dispatch must
// return without waiting for the outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// WebhookDispatcher delivers settlement requests as JSON POSTs to the
// callable URL. Delivery is fire-and-forget: failures are logged, and an
// unresponsive target simply leaves the match pending.
type WebhookDispatcher struct {
	client *http.Client
	log    *zap.SugaredLogger
}

func NewWebhookDispatcher(timeout time.Duration, log *zap.SugaredLogger) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, req Request) error {
	go d.deliver(req)
	return nil
}

func (d *WebhookDispatcher) deliver(req Request) {
	body, err := json.Marshal(req)
	if err != nil {
		d.log.Warnw("settlement_marshal_failed", "delivery_id", req.DeliveryID, "err", err)
		return
	}

	httpReq, err := http.NewRequest(http.MethodPost, req.Callable, bytes.NewReader(body))
	if err != nil {
		d.log.Warnw("settlement_request_failed", "delivery_id", req.DeliveryID, "target", req.Callable, "err", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Delivery-Id", req.DeliveryID)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.log.Warnw("settlement_delivery_failed", "delivery_id", req.DeliveryID, "target", req.Callable, "err", err)
		return
	}
	resp.Body.Close()

	d.log.Infow("settlement_dispatched",
		"delivery_id", req.DeliveryID,
		"target", req.Callable,
		"maker_id", req.MakerID,
		"taker_id", req.TakerID,
		"status", resp.StatusCode)
}

// Queue is the completion channel the engine drains. The host delivers
// completions here; the engine's run loop applies them one at a time.
type Queue struct {
	ch chan Completion
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Completion, size)}
}

// Push enqueues a completion, blocking if the queue is full.
func (q *Queue) Push(c Completion) {
	q.ch <- c
}

// C exposes the receive side for the engine's run loop.
func (q *Queue) C() <-chan Completion {
	return q.ch
}
