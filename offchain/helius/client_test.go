package helius

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRPCURL(t *testing.T) {
	t.Parallel()

	got, err := RPCURL(ClusterMainnet, "k")
	if err != nil {
		t.Fatalf("RPCURL: %v", err)
	}
	if !strings.HasPrefix(got, "https://mainnet.helius-rpc.com") {
		t.Fatalf("unexpected mainnet url: %q", got)
	}
	if !strings.Contains(got, "api-key=k") {
		t.Fatalf("missing api-key query: %q", got)
	}

	got, err = RPCURL(ClusterDevnet, "k")
	if err != nil {
		t.Fatalf("RPCURL: %v", err)
	}
	if !strings.HasPrefix(got, "https://devnet.helius-rpc.com") {
		t.Fatalf("unexpected devnet url: %q", got)
	}

	if _, err := RPCURL(ClusterMainnet, ""); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := RPCURL("unknown", "k"); err == nil {
		t.Fatalf("expected unsupported cluster error")
	}
}

func TestClient_GetPriorityFeeEstimate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "getPriorityFeeEstimate" {
			t.Fatalf("unexpected method: %q", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"priorityFeeEstimate":123.4,"priorityFeeLevels":{"min":1,"medium":3}}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client())
	got, err := c.GetPriorityFeeEstimate(context.Background(), PriorityFeeEstimateRequest{
		AccountKeys: []string{"11111111111111111111111111111111"},
		Options:     &PriorityFeeOptions{PriorityLevel: PriorityMedium},
	})
	if err != nil {
		t.Fatalf("GetPriorityFeeEstimate: %v", err)
	}
	if got.MicroLamports != 124 {
		t.Fatalf("unexpected microLamports: got=%d want=124", got.MicroLamports)
	}
	if got.Levels == nil || got.Levels.Min != 1 || got.Levels.Medium != 3 {
		t.Fatalf("unexpected levels: %#v", got.Levels)
	}
}

func TestClient_RecommendedComputeUnitPrice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []struct {
				Options *PriorityFeeOptions `json:"options"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Params) != 1 || req.Params[0].Options == nil || !req.Params[0].Options.Recommended {
			t.Fatalf("expected recommended option, got %+v", req.Params)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"priorityFeeEstimate":5001}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client())
	got, err := c.RecommendedComputeUnitPrice(context.Background(), []string{"11111111111111111111111111111111"})
	if err != nil {
		t.Fatalf("RecommendedComputeUnitPrice: %v", err)
	}
	if got != 5001 {
		t.Fatalf("unexpected price: got=%d want=5001", got)
	}
}

func TestClient_RPCError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32600,"message":"bad request"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client())
	_, err := c.GetPriorityFeeEstimate(context.Background(), PriorityFeeEstimateRequest{
		AccountKeys: []string{"11111111111111111111111111111111"},
	})
	if err == nil || !strings.Contains(err.Error(), "bad request") {
		t.Fatalf("err=%v, want helius rpc error", err)
	}
}
