package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/params"
	"github.com/pairbook/pairbook/pkg/api"
	"github.com/pairbook/pairbook/pkg/engine"
	"github.com/pairbook/pairbook/pkg/ledger"
	"github.com/pairbook/pairbook/pkg/settle"
)

const (
	aliceHex = "0x1111111111111111111111111111111111111111"
	bobHex   = "0x2222222222222222222222222222222222222222"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, req settle.Request) error { return nil }

func newTestServer() (http.Handler, *engine.Engine, *settle.Queue, params.Config) {
	log := zap.NewNop().Sugar()
	bl := ledger.New(log)
	queue := settle.NewQueue(16)
	eng := engine.New(bl, nopDispatcher{}, queue, log)
	cfg := params.Default()
	srv := api.NewServer(eng, queue, cfg, log)
	return srv.Handler(), eng, queue, cfg
}

func post(t *testing.T, h http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitOrder(t *testing.T) {
	h, eng, _, _ := newTestServer()

	rec := post(t, h, "/api/v1/orders", api.SubmitOrderRequest{
		Address: aliceHex,
		Side:    "ask",
		Price:   100,
		Size:    5,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp api.SubmitOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.OrderID == "" {
		t.Fatal("response missing order id")
	}
	if !resp.Final || resp.RemainingSize != 5 {
		t.Fatalf("unmatched order response: %+v", resp)
	}

	asks := eng.AskLevels()
	if len(asks) != 1 || asks[0].Price != 100 || asks[0].Volume != 5 {
		t.Fatalf("order not resting: %+v", asks)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	h, _, _, _ := newTestServer()

	cases := []struct {
		name string
		req  api.SubmitOrderRequest
	}{
		{"bad address", api.SubmitOrderRequest{Address: "nope", Side: "bid", Price: 1, Size: 1}},
		{"bad side", api.SubmitOrderRequest{Address: aliceHex, Side: "buy", Price: 1, Size: 1}},
		{"zero size", api.SubmitOrderRequest{Address: aliceHex, Side: "bid", Price: 1, Size: 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := post(t, h, "/api/v1/orders", c.req, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestDepositAndBalances(t *testing.T) {
	h, _, _, _ := newTestServer()

	rec := post(t, h, "/api/v1/deposits", api.DepositRequest{
		Address: aliceHex,
		Asset:   "quote",
		Amount:  1000,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = get(t, h, "/api/v1/accounts/"+aliceHex+"/balances")
	if rec.Code != http.StatusOK {
		t.Fatalf("balances status = %d", rec.Code)
	}
	var resp api.BalancesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Quote != 1000 || resp.Base != 0 {
		t.Fatalf("balances = %+v", resp)
	}
	if resp.Address != common.HexToAddress(aliceHex).Hex() {
		t.Fatalf("address = %s", resp.Address)
	}
}

func TestDepositRejectsUnknownAsset(t *testing.T) {
	h, _, _, _ := newTestServer()

	rec := post(t, h, "/api/v1/deposits", api.DepositRequest{
		Address: aliceHex,
		Asset:   "gold",
		Amount:  10,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCompleteSettlementAuth(t *testing.T) {
	h, _, queue, cfg := newTestServer()

	body := api.CompleteSettlementRequest{TakerID: "1", MakerID: "2", Success: true}

	rec := post(t, h, "/api/v1/settlements/complete", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	rec = post(t, h, "/api/v1/settlements/complete", body,
		map[string]string{"Authorization": "Bearer wrong-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}

	select {
	case c := <-queue.C():
		t.Fatalf("unauthorized completion reached the queue: %+v", c)
	default:
	}

	rec = post(t, h, "/api/v1/settlements/complete", body,
		map[string]string{"Authorization": "Bearer " + cfg.Settlement.AuthToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	select {
	case c := <-queue.C():
		if c.TakerID != 1 || c.MakerID != 2 || !c.Success {
			t.Fatalf("queued completion = %+v", c)
		}
	default:
		t.Fatal("authorized completion never reached the queue")
	}
}

func TestCompleteSettlementRejectsBadIDs(t *testing.T) {
	h, _, _, cfg := newTestServer()

	rec := post(t, h, "/api/v1/settlements/complete",
		api.CompleteSettlementRequest{TakerID: "not-a-number", MakerID: "2", Success: true},
		map[string]string{"Authorization": "Bearer " + cfg.Settlement.AuthToken})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBookSnapshot(t *testing.T) {
	h, _, _, _ := newTestServer()

	post(t, h, "/api/v1/orders", api.SubmitOrderRequest{Address: aliceHex, Side: "ask", Price: 105, Size: 3}, nil)
	post(t, h, "/api/v1/orders", api.SubmitOrderRequest{Address: bobHex, Side: "bid", Price: 95, Size: 2}, nil)

	rec := get(t, h, "/api/v1/book")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap api.BookSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 105 || snap.Asks[0].Volume != 3 {
		t.Fatalf("asks = %+v", snap.Asks)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 95 || snap.Bids[0].Volume != 2 {
		t.Fatalf("bids = %+v", snap.Bids)
	}
}

func TestHealth(t *testing.T) {
	h, _, _, _ := newTestServer()

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
