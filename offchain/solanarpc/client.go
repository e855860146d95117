package solanarpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

var (
	ErrMissingRPCURL = errors.New("missing rpc url")
	ErrRPCError      = errors.New("solana rpc error")
)

type RPCError struct {
	Code    int
	Message string
	// Logs carries on-chain simulation output when the node attaches it to a
	// preflight failure.
	Logs []string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrRPCError.Error(), e.Code, e.Message)
}

func (e *RPCError) Unwrap() error { return ErrRPCError }

type Client struct {
	rpcURL string
	http   *http.Client
}

func New(rpcURL string, httpClient *http.Client) *Client {
	rpcURL = strings.TrimSpace(rpcURL)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		rpcURL: rpcURL,
		http:   httpClient,
	}
}

func ClientFromEnv() (*Client, error) {
	if raw := strings.TrimSpace(os.Getenv("SOLANA_RPC_URL")); raw != "" {
		return New(raw, nil), nil
	}
	return nil, ErrMissingRPCURL
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) logs() []string {
	if len(e.Data) == 0 {
		return nil
	}
	var data struct {
		Logs []string `json:"logs"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil
	}
	return data.Logs
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func isRateLimitedRPCError(code int, message string) bool {
	if code == 429 || code == -32429 {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(message))
	return strings.Contains(msg, "rate") && strings.Contains(msg, "limit")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) rpcCall(ctx context.Context, method string, params any, out any) error {
	if c == nil {
		return errors.New("nil rpc client")
	}
	if strings.TrimSpace(c.rpcURL) == "" {
		return ErrMissingRPCURL
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	backoff := 1 * time.Second
	maxBackoff := 10 * time.Second
	maxAttempts := 7

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w: http status=%d", ErrRPCError, resp.StatusCode)
			if attempt < maxAttempts {
				if err := sleepWithContext(ctx, backoff); err != nil {
					return err
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			return lastErr
		}

		var rr rpcResponse
		if err := json.Unmarshal(raw, &rr); err != nil {
			lastErr = fmt.Errorf("decode rpc response: %w", err)
			if attempt < maxAttempts {
				if err := sleepWithContext(ctx, backoff); err != nil {
					return err
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			return lastErr
		}
		if rr.Error != nil {
			lastErr = &RPCError{Code: rr.Error.Code, Message: rr.Error.Message, Logs: rr.Error.logs()}
			if isRateLimitedRPCError(rr.Error.Code, rr.Error.Message) && attempt < maxAttempts {
				if err := sleepWithContext(ctx, backoff); err != nil {
					return err
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			return lastErr
		}
		if out == nil {
			return nil
		}
		if len(rr.Result) == 0 {
			return fmt.Errorf("%w: empty result", ErrRPCError)
		}
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("%w: no response", ErrRPCError)
}

func (c *Client) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	var resp struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	// Use finalized to avoid "Blockhash not found" when talking to load-balanced public RPCs.
	if err := c.rpcCall(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": "finalized"}}, &resp); err != nil {
		return out, err
	}

	bh, err := solana.ParsePubkey(resp.Value.Blockhash)
	if err != nil {
		return out, fmt.Errorf("invalid blockhash: %w", err)
	}
	copy(out[:], bh[:])
	return out, nil
}

// MinimumBalanceForRentExemption asks the cluster for the rent-exempt balance
// of an account of the given byte size. Rent parameters are cluster-governed,
// so this is never computed locally.
func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var resp uint64
	if err := c.rpcCall(ctx, "getMinimumBalanceForRentExemption", []any{size}, &resp); err != nil {
		return 0, err
	}
	return resp, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error) {
	if len(tx) == 0 {
		return "", errors.New("empty tx")
	}
	b64 := base64.StdEncoding.EncodeToString(tx)
	var resp string
	params := []any{
		b64,
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       skipPreflight,
			"preflightCommitment": "confirmed",
		},
	}
	if err := c.rpcCall(ctx, "sendTransaction", params, &resp); err != nil {
		return "", err
	}
	return resp, nil
}

// AccountInfo describes an existing account. A nil return with nil error
// means the account does not exist.
type AccountInfo struct {
	Lamports uint64
	Owner    string
	Data     []byte
}

func (c *Client) AccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return nil, errors.New("pubkey required")
	}
	var resp struct {
		Value *struct {
			Lamports uint64 `json:"lamports"`
			Owner    string `json:"owner"`
			Data     []any  `json:"data"`
		} `json:"value"`
	}
	params := []any{
		pubkey,
		map[string]any{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}
	if err := c.rpcCall(ctx, "getAccountInfo", params, &resp); err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports: resp.Value.Lamports,
		Owner:    resp.Value.Owner,
	}
	if len(resp.Value.Data) >= 1 {
		if s, ok := resp.Value.Data[0].(string); ok && strings.TrimSpace(s) != "" {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, err
			}
			info.Data = b
		}
	}
	return info, nil
}

type SignatureStatus struct {
	Slot               uint64 `json:"slot"`
	Confirmations      *int   `json:"confirmations"`
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

// SignatureStatus returns nil when the cluster does not know the signature.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, errors.New("signature required")
	}
	var resp struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": false},
	}
	if err := c.rpcCall(ctx, "getSignatureStatuses", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	return resp.Value[0], nil
}

func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var resp uint64
	if err := c.rpcCall(ctx, "getSlot", []any{map[string]any{"commitment": "processed"}}, &resp); err != nil {
		return 0, err
	}
	return resp, nil
}

func (c *Client) BalanceLamports(ctx context.Context, pubkey string) (uint64, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return 0, errors.New("pubkey required")
	}
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.rpcCall(ctx, "getBalance", []any{pubkey, map[string]any{"commitment": "processed"}}, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *Client) RequestAirdrop(ctx context.Context, pubkey string, lamports uint64) (string, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return "", errors.New("pubkey required")
	}
	if lamports == 0 {
		return "", errors.New("lamports required")
	}
	var sig string
	if err := c.rpcCall(ctx, "requestAirdrop", []any{pubkey, lamports}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}
